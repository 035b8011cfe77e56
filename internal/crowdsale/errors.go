package crowdsale

import "errors"

// Transition errors. Every rejected transition reports exactly one of these.
var (
	ErrAlreadyInitialized         = errors.New("sale already initialized")
	ErrUnauthorized               = errors.New("signer is not the sale authority")
	ErrInvalidParameters          = errors.New("invalid sale parameters")
	ErrSaleNotActive              = errors.New("sale is not active")
	ErrAmountOutOfBounds          = errors.New("contribution out of bounds")
	ErrArithmeticOverflow         = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow        = errors.New("arithmetic underflow")
	ErrInsufficientVaultInventory = errors.New("insufficient vault inventory")
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrMintMismatch               = errors.New("token mint mismatch")
	ErrSaleNotEnded               = errors.New("sale has not ended")
	ErrSaleClosed                 = errors.New("sale is closed")
	ErrInvalidAccount             = errors.New("invalid account")
	ErrAlreadyProcessed           = errors.New("instruction already processed")
	ErrAccountNotInitialized      = errors.New("account not initialized")
)

// Custom error codes start at 6000 and follow declaration order. The codes
// are part of the wire contract and must not be renumbered.
var taxonomy = []struct {
	err  error
	code uint32
	name string
}{
	{ErrAlreadyInitialized, 6000, "AlreadyInitialized"},
	{ErrUnauthorized, 6001, "Unauthorized"},
	{ErrInvalidParameters, 6002, "InvalidParameters"},
	{ErrSaleNotActive, 6003, "SaleNotActive"},
	{ErrAmountOutOfBounds, 6004, "AmountOutOfBounds"},
	{ErrArithmeticOverflow, 6005, "ArithmeticOverflow"},
	{ErrArithmeticUnderflow, 6006, "ArithmeticUnderflow"},
	{ErrInsufficientVaultInventory, 6007, "InsufficientVaultInventory"},
	{ErrInsufficientBalance, 6008, "InsufficientBalance"},
	{ErrMintMismatch, 6009, "MintMismatch"},
	{ErrSaleNotEnded, 6010, "SaleNotEnded"},
	{ErrSaleClosed, 6011, "SaleClosed"},
	{ErrInvalidAccount, 6012, "InvalidAccount"},
	{ErrAlreadyProcessed, 6013, "AlreadyProcessed"},
	{ErrAccountNotInitialized, 6014, "AccountNotInitialized"},
}

// Code returns the numeric code of a transition error.
func Code(err error) (uint32, bool) {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.code, true
		}
	}
	return 0, false
}

// Name returns the stable name of a transition error, or "" if err is not
// one.
func Name(err error) string {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.name
		}
	}
	return ""
}

// FromCode returns the transition error with the given code, or nil.
func FromCode(code uint32) error {
	for _, t := range taxonomy {
		if t.code == code {
			return t.err
		}
	}
	return nil
}

// IsRejection reports whether err is a transition error rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	_, ok := Code(err)
	return ok
}
