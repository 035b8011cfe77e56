package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"crowdsale-ledger/internal/address"
	"crowdsale-ledger/internal/clock"
	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/events"
	"crowdsale-ledger/internal/instruction"
	"crowdsale-ledger/internal/processor"
	"crowdsale-ledger/internal/storage/memory"
	"crowdsale-ledger/internal/token"
)

const t0 = int64(1_700_000_000)

type fixture struct {
	t         *testing.T
	srv       *httptest.Server
	hub       *events.Hub
	ctl       *crowdsale.Controller
	clock     *clock.Manual
	program   domain.Pubkey
	authKey   solana.PrivateKey
	authority domain.Pubkey
	mint      domain.Pubkey
	nonce     uint64
}

func newFixture(t *testing.T, devFaucet bool) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewAccountStore()
	journal := memory.NewJournalStore()
	deriver := address.NewDeriver(address.DefaultProgramID)
	hub := events.NewHub(16, logger)
	clk := clock.NewManual(t0)

	ctl := crowdsale.NewController(store, deriver,
		crowdsale.WithClock(clk),
		crowdsale.WithLogger(logger),
		crowdsale.WithSink(events.Fanout{
			{Name: "journal", Sink: events.NewJournalSink(journal)},
			{Name: "hub", Sink: hub},
		}),
	)
	s := NewServer(Config{
		Processor:  processor.New(ctl, logger),
		Controller: ctl,
		Bank:       token.NewBank(store, deriver, logger),
		Journal:    journal,
		Hub:        hub,
		Logger:     logger,
		DevFaucet:  devFaucet,
		Backend:    "memory",
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	return &fixture{
		t:         t,
		srv:       srv,
		hub:       hub,
		ctl:       ctl,
		clock:     clk,
		program:   deriver.ProgramID(),
		authKey:   key,
		authority: domain.Pubkey(key.PublicKey()),
		mint:      domain.Pubkey(solana.NewWallet().PublicKey()),
	}
}

func (f *fixture) post(body string) *Response {
	f.t.Helper()
	resp, err := http.Post(f.srv.URL, "application/json", strings.NewReader(body))
	require.NoError(f.t, err)
	defer resp.Body.Close()
	require.Equal(f.t, http.StatusOK, resp.StatusCode)

	var out Response
	require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

func (f *fixture) call(method string, params, result any) *Error {
	f.t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(f.t, err)
	body, err := json.Marshal(Request{JSONRPC: Version, ID: json.RawMessage("1"), Method: method, Params: raw})
	require.NoError(f.t, err)

	resp := f.post(string(body))
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil {
		require.NoError(f.t, json.Unmarshal(resp.Result, result))
	}
	return nil
}

func (f *fixture) send(ins instruction.Instruction, key solana.PrivateKey) (*SendInstructionResult, *Error) {
	f.t.Helper()
	signed, err := instruction.Sign(ins, key)
	require.NoError(f.t, err)
	var out SendInstructionResult
	if rpcErr := f.call(MethodSendInstruction, signed, &out); rpcErr != nil {
		return nil, rpcErr
	}
	return &out, nil
}

func (f *fixture) next() uint64 {
	f.nonce++
	return f.nonce
}

// bootstrap creates the mint and a funded, configured sale via RPC.
func (f *fixture) bootstrap() (address.SaleAddresses, domain.Pubkey) {
	f.t.Helper()
	require.Nil(f.t, f.call(MethodCreateMint, CreateMintParams{Address: f.mint, Authority: f.authority, Decimals: 9}, nil))
	var source AddressParams
	require.Nil(f.t, f.call(MethodCreateHolding, CreateHoldingParams{Owner: f.authority, Mint: f.mint}, &source))
	require.Nil(f.t, f.call(MethodMintTo, MintToParams{Mint: f.mint, Destination: source.Address, Authority: f.authority, Amount: 100_000_000_000_000}, nil))

	a := f.ctl.Deriver().ForAuthority(f.authority)
	_, rpcErr := f.send(instruction.NewInitialize(f.program, f.authority, f.next(), f.ctl.InitializeAccountsFor(f.authority, f.mint)), f.authKey)
	require.Nil(f.t, rpcErr)
	_, rpcErr = f.send(instruction.NewConfigure(f.program, f.authority, f.next(), crowdsale.ConfigureAccounts{Sale: a.Sale}, crowdsale.ConfigureParams{
		MinContribution: 200_000_000,
		MaxContribution: 5_000_000_000,
		StartTime:       t0 + 10,
		EndTime:         t0 + 1000,
		Price:           200_000_000,
	}), f.authKey)
	require.Nil(f.t, rpcErr)
	_, rpcErr = f.send(instruction.NewFund(f.program, f.authority, f.next(), crowdsale.FundAccounts{Sale: a.Sale, Vault: a.Vault, Source: source.Address}, 70_000_000_000_000), f.authKey)
	require.Nil(f.t, rpcErr)
	return a, source.Address
}

func TestRPC_SaleLifecycle(t *testing.T) {
	f := newFixture(t, true)
	a, _ := f.bootstrap()

	buyerKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	buyer := domain.Pubkey(buyerKey.PublicKey())

	var derived DerivedAddresses
	require.Nil(t, f.call(MethodDeriveAddresses, DeriveAddressesParams{Authority: f.authority, Buyer: &buyer, Mint: &f.mint}, &derived))
	assert.Equal(t, a.Sale, derived.Sale)
	assert.Equal(t, a.Vault, derived.Vault)
	require.NotNil(t, derived.BuyerEntry)
	require.NotNil(t, derived.BuyerHolding)

	require.Nil(t, f.call(MethodRequestAirdrop, RequestAirdropParams{Owner: buyer, Lamports: 3_000_000_000}, nil))
	var dest AddressParams
	require.Nil(t, f.call(MethodCreateHolding, CreateHoldingParams{Owner: buyer, Mint: f.mint}, &dest))
	assert.Equal(t, *derived.BuyerHolding, dest.Address)

	purchase := instruction.NewPurchase(f.program, buyer, f.next(), f.ctl.PurchaseAccountsFor(f.authority, buyer, dest.Address), 1_000_000_000)

	// Before the window opens.
	_, rpcErr := f.send(purchase, buyerKey)
	require.NotNil(t, rpcErr)
	assert.Equal(t, 6003, rpcErr.Code)
	assert.Equal(t, "SaleNotActive", rpcErr.Data.Name)
	assert.ErrorIs(t, rpcErr, crowdsale.ErrSaleNotActive)

	f.clock.Set(t0 + 10)
	res, rpcErr := f.send(purchase, buyerKey)
	require.Nil(t, rpcErr)
	assert.Equal(t, uint64(5_000_000_000), res.Event.Allocation)
	assert.NotEmpty(t, res.Signature)

	_, rpcErr = f.send(purchase, buyerKey)
	require.NotNil(t, rpcErr)
	assert.Equal(t, "AlreadyProcessed", rpcErr.Data.Name)

	var sale SaleInfo
	require.Nil(t, f.call(MethodGetSale, GetSaleParams{Authority: &f.authority}, &sale))
	assert.Equal(t, a.Sale, sale.Address)
	assert.Equal(t, uint64(5_000_000_000), sale.TotalSold)
	assert.Equal(t, uint64(1_000_000_000), sale.EscrowBalance)

	var entry BuyerEntryInfo
	require.Nil(t, f.call(MethodGetBuyerEntry, GetBuyerEntryParams{Sale: a.Sale, Buyer: buyer}, &entry))
	assert.Equal(t, uint64(1_000_000_000), entry.CumulativeContribution)
	assert.Equal(t, uint64(5_000_000_000), entry.CumulativeAllocation)

	var vault HoldingInfo
	require.Nil(t, f.call(MethodGetVault, AddressParams{Address: a.Vault}, &vault))
	assert.Equal(t, uint64(70_000_000_000_000-5_000_000_000), vault.Amount)

	var holding HoldingInfo
	require.Nil(t, f.call(MethodGetTokenHolding, AddressParams{Address: dest.Address}, &holding))
	assert.Equal(t, uint64(5_000_000_000), holding.Amount)

	var balance BalanceResult
	require.Nil(t, f.call(MethodGetBalance, GetBalanceParams{Owner: buyer}, &balance))
	assert.Equal(t, uint64(2_000_000_000), balance.Lamports)

	var info AccountInfo
	require.Nil(t, f.call(MethodGetAccountInfo, AddressParams{Address: a.Sale}, &info))
	assert.Equal(t, domain.KindSaleRecord, info.Kind)
	assert.NotEmpty(t, info.Data)

	var journal []*domain.Event
	require.Nil(t, f.call(MethodGetJournal, GetJournalParams{Sale: a.Sale}, &journal))
	require.Len(t, journal, 4)
	assert.Equal(t, domain.EventPurchased, journal[3].Kind)
}

func TestRPC_ProtocolErrors(t *testing.T) {
	f := newFixture(t, false)

	resp := f.post(`{"jsonrpc":"2.0","id":1,"method":`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)

	resp = f.post(`{"jsonrpc":"1.0","id":1,"method":"getSale"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)

	resp = f.post(`{"jsonrpc":"2.0","id":"abc","method":"transfer","params":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.JSONEq(t, `"abc"`, string(resp.ID))

	// Faucet methods are not registered when disabled.
	rpcErr := f.call(MethodRequestAirdrop, RequestAirdropParams{Owner: domain.Pubkey{1}, Lamports: 1}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)

	rpcErr = f.call(MethodGetSale, map[string]any{"address": "not-base58!"}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)

	rpcErr = f.call(MethodGetSale, GetSaleParams{}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)

	rpcErr = f.call(MethodGetSale, GetSaleParams{Authority: &f.authority}, nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, "AccountNotInitialized", rpcErr.Data.Name)

	resp = f.post(`{"jsonrpc":"2.0","id":2,"method":"getAccountInfo","params":{"address":"11111111111111111111111111111111"}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result))
}

func TestRPC_FaucetRejectsProgramAddresses(t *testing.T) {
	f := newFixture(t, true)
	var derived DerivedAddresses
	require.Nil(t, f.call(MethodDeriveAddresses, DeriveAddressesParams{Authority: f.authority}, &derived))

	rpcErr := f.call(MethodRequestAirdrop, RequestAirdropParams{Owner: derived.Sale, Lamports: 1}, nil)
	require.NotNil(t, rpcErr)
	assert.ErrorIs(t, rpcErr, crowdsale.ErrInvalidAccount)

	rpcErr = f.call(MethodCreateMint, CreateMintParams{Address: derived.Vault, Authority: f.authority, Decimals: 9}, nil)
	require.NotNil(t, rpcErr)
	assert.ErrorIs(t, rpcErr, crowdsale.ErrInvalidAccount)

	// initialize still finds the sale address free.
	f.bootstrap()
}

func TestRPC_MalformedInstruction(t *testing.T) {
	f := newFixture(t, false)
	a := f.ctl.Deriver().ForAuthority(f.authority)

	ins := instruction.NewWithdraw(f.program, f.authority, 1, crowdsale.WithdrawAccounts{Sale: a.Sale}, 1)
	ins.Accounts = append(ins.Accounts, domain.Pubkey{9})
	_, rpcErr := f.send(ins, f.authKey)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
	assert.Equal(t, "InvalidInstruction", rpcErr.Data.Name)
}

func TestRPC_Batch(t *testing.T) {
	f := newFixture(t, false)

	resp, err := http.Post(f.srv.URL, "application/json", bytes.NewBufferString(`[
		{"jsonrpc":"2.0","id":1,"method":"getBalance","params":{"owner":"11111111111111111111111111111111"}},
		{"jsonrpc":"2.0","id":2,"method":"nope"}
	]`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Error)
	assert.JSONEq(t, `{"lamports":0}`, string(out[0].Result))
	require.NotNil(t, out[1].Error)
	assert.Equal(t, CodeMethodNotFound, out[1].Error.Code)
}

func TestHTTP_HealthAndStatus(t *testing.T) {
	f := newFixture(t, true)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, address.DefaultProgramID.String(), status.ProgramID)
	assert.Equal(t, "memory", status.Backend)
	assert.True(t, status.DevFaucet)
	assert.True(t, status.Journal)
}

func TestWS_StreamsCommittedEvents(t *testing.T) {
	f := newFixture(t, true)
	a := f.ctl.Deriver().ForAuthority(f.authority)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?sale=" + a.Sale.String()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	f.bootstrap()

	kinds := make([]domain.EventKind, 0, 3)
	for len(kinds) < 3 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var e domain.Event
		require.NoError(t, conn.ReadJSON(&e))
		assert.Equal(t, a.Sale, e.Sale)
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []domain.EventKind{domain.EventInitialized, domain.EventConfigured, domain.EventFunded}, kinds)
}

func TestWS_RejectsBadFilter(t *testing.T) {
	f := newFixture(t, false)
	resp, err := http.Get(f.srv.URL + "/ws?sale=0OIl")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
