// Package client is a JSON-RPC client for the crowdsale ledger server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/instruction"
	"crowdsale-ledger/internal/rpc"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Client calls the ledger over HTTP JSON-RPC 2.0.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// New creates a client for the server at endpoint, e.g. http://localhost:8899.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the server URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Transport failures are retried; a JSON-RPC error is returned as *rpc.Error
// immediately. A retried sendInstruction that already committed fails with
// crowdsale.ErrAlreadyProcessed.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	reqID := c.requestID.Add(1)
	body, err := json.Marshal(rpc.Request{
		JSONRPC: rpc.Version,
		ID:      json.RawMessage(strconv.FormatUint(reqID, 10)),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpc.Response
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && len(rpcResp.Result) > 0 {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// SendInstruction submits a signed instruction.
func (c *Client) SendInstruction(ctx context.Context, signed *instruction.Signed) (*rpc.SendInstructionResult, error) {
	var out rpc.SendInstructionResult
	if err := c.call(ctx, rpc.MethodSendInstruction, signed, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSale returns the sale stored at addr.
func (c *Client) GetSale(ctx context.Context, addr domain.Pubkey) (*rpc.SaleInfo, error) {
	var out rpc.SaleInfo
	if err := c.call(ctx, rpc.MethodGetSale, rpc.GetSaleParams{Address: &addr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSaleByAuthority returns the sale derived from authority.
func (c *Client) GetSaleByAuthority(ctx context.Context, authority domain.Pubkey) (*rpc.SaleInfo, error) {
	var out rpc.SaleInfo
	if err := c.call(ctx, rpc.MethodGetSale, rpc.GetSaleParams{Authority: &authority}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVault returns the vault stored at addr.
func (c *Client) GetVault(ctx context.Context, addr domain.Pubkey) (*rpc.HoldingInfo, error) {
	var out rpc.HoldingInfo
	if err := c.call(ctx, rpc.MethodGetVault, rpc.AddressParams{Address: addr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBuyerEntry returns the ledger entry of buyer within sale.
func (c *Client) GetBuyerEntry(ctx context.Context, sale, buyer domain.Pubkey) (*rpc.BuyerEntryInfo, error) {
	var out rpc.BuyerEntryInfo
	if err := c.call(ctx, rpc.MethodGetBuyerEntry, rpc.GetBuyerEntryParams{Sale: sale, Buyer: buyer}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenHolding returns the token holding stored at addr.
func (c *Client) GetTokenHolding(ctx context.Context, addr domain.Pubkey) (*rpc.HoldingInfo, error) {
	var out rpc.HoldingInfo
	if err := c.call(ctx, rpc.MethodGetTokenHolding, rpc.AddressParams{Address: addr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance returns the native balance of owner.
func (c *Client) GetBalance(ctx context.Context, owner domain.Pubkey) (uint64, error) {
	var out rpc.BalanceResult
	if err := c.call(ctx, rpc.MethodGetBalance, rpc.GetBalanceParams{Owner: owner}, &out); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

// GetAccountInfo returns the raw account at addr.
// Returns nil if the address is empty.
func (c *Client) GetAccountInfo(ctx context.Context, addr domain.Pubkey) (*rpc.AccountInfo, error) {
	var out *rpc.AccountInfo
	if err := c.call(ctx, rpc.MethodGetAccountInfo, rpc.AddressParams{Address: addr}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveAddresses asks the server for the derived addresses of a sale.
func (c *Client) DeriveAddresses(ctx context.Context, p rpc.DeriveAddressesParams) (*rpc.DerivedAddresses, error) {
	var out rpc.DerivedAddresses
	if err := c.call(ctx, rpc.MethodDeriveAddresses, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJournal returns up to limit journaled events of sale, oldest first.
func (c *Client) GetJournal(ctx context.Context, sale domain.Pubkey, limit int) ([]*domain.Event, error) {
	var out []*domain.Event
	if err := c.call(ctx, rpc.MethodGetJournal, rpc.GetJournalParams{Sale: sale, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestAirdrop credits lamports to owner and returns the new balance.
// Requires the dev faucet.
func (c *Client) RequestAirdrop(ctx context.Context, owner domain.Pubkey, lamports uint64) (uint64, error) {
	var out rpc.BalanceResult
	if err := c.call(ctx, rpc.MethodRequestAirdrop, rpc.RequestAirdropParams{Owner: owner, Lamports: lamports}, &out); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

// CreateMint creates a mint at addr. Requires the dev faucet.
func (c *Client) CreateMint(ctx context.Context, addr, authority domain.Pubkey, decimals uint8) error {
	return c.call(ctx, rpc.MethodCreateMint, rpc.CreateMintParams{Address: addr, Authority: authority, Decimals: decimals}, nil)
}

// CreateHolding creates the canonical holding of owner for mint and returns
// its address. Requires the dev faucet.
func (c *Client) CreateHolding(ctx context.Context, owner, mint domain.Pubkey) (domain.Pubkey, error) {
	var out rpc.AddressParams
	if err := c.call(ctx, rpc.MethodCreateHolding, rpc.CreateHoldingParams{Owner: owner, Mint: mint}, &out); err != nil {
		return domain.Pubkey{}, err
	}
	return out.Address, nil
}

// MintTo mints amount into dest. Requires the dev faucet.
func (c *Client) MintTo(ctx context.Context, mint, dest, authority domain.Pubkey, amount uint64) (*rpc.HoldingInfo, error) {
	var out rpc.HoldingInfo
	p := rpc.MintToParams{Mint: mint, Destination: dest, Authority: authority, Amount: amount}
	if err := c.call(ctx, rpc.MethodMintTo, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
