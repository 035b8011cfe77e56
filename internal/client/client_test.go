package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crowdsale-ledger/internal/crowdsale"
	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/rpc"
)

func rpcHandler(t *testing.T, fn func(req rpc.Request) rpc.Response) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpc.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := fn(req)
		resp.JSONRPC = rpc.Version
		resp.ID = req.ID
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func fastRetries() []Option {
	return []Option{WithRetryDelay(time.Millisecond), WithMaxDelay(5 * time.Millisecond)}
}

func TestClient_GetBalance(t *testing.T) {
	owner := domain.Pubkey{7}
	server := httptest.NewServer(rpcHandler(t, func(req rpc.Request) rpc.Response {
		if req.Method != rpc.MethodGetBalance {
			t.Errorf("expected method %s, got %s", rpc.MethodGetBalance, req.Method)
		}
		var p rpc.GetBalanceParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			t.Errorf("decode params: %v", err)
		}
		if p.Owner != owner {
			t.Errorf("expected owner %s, got %s", owner, p.Owner)
		}
		return rpc.Response{Result: json.RawMessage(`{"lamports":42}`)}
	}))
	defer server.Close()

	got, err := New(server.URL).GetBalance(context.Background(), owner)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42 lamports, got %d", got)
	}
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			rpcHandler(t, func(rpc.Request) rpc.Response {
				return rpc.Response{Result: json.RawMessage(`{"lamports":1}`)}
			})(w, r)
		}
	}))
	defer server.Close()

	got, err := New(server.URL, fastRetries()...).GetBalance(context.Background(), domain.Pubkey{1})
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got != 1 {
		t.Errorf("expected 1 lamport, got %d", got)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(server.URL, append(fastRetries(), WithMaxRetries(2))...)
	_, err := c.GetBalance(context.Background(), domain.Pubkey{1})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_RejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(rpcHandler(t, func(rpc.Request) rpc.Response {
		calls.Add(1)
		return rpc.Response{Error: &rpc.Error{
			Code:    6007,
			Message: "insufficient vault inventory",
			Data:    &rpc.ErrorData{Name: "InsufficientVaultInventory"},
		}}
	}))
	defer server.Close()

	_, err := New(server.URL, fastRetries()...).GetSale(context.Background(), domain.Pubkey{1})
	if !errors.Is(err, crowdsale.ErrInsufficientVaultInventory) {
		t.Fatalf("expected ErrInsufficientVaultInventory, got %v", err)
	}
	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.Data.Name != "InsufficientVaultInventory" {
		t.Errorf("expected *rpc.Error carrying the name, got %#v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestClient_GetAccountInfoMissing(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(rpc.Request) rpc.Response {
		return rpc.Response{Result: json.RawMessage(`null`)}
	}))
	defer server.Close()

	info, err := New(server.URL).GetAccountInfo(context.Background(), domain.Pubkey{1})
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil, got %+v", info)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(server.URL).GetBalance(ctx, domain.Pubkey{1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWSURL(t *testing.T) {
	sale := domain.Pubkey{3}
	tests := []struct {
		endpoint string
		sale     domain.Pubkey
		want     string
		wantErr  bool
	}{
		{"http://localhost:8899", domain.Pubkey{}, "ws://localhost:8899/ws", false},
		{"https://ledger.example/", domain.Pubkey{}, "wss://ledger.example/ws", false},
		{"http://localhost:8899", sale, "ws://localhost:8899/ws?sale=" + sale.String(), false},
		{"ftp://localhost", domain.Pubkey{}, "", true},
	}
	for _, tt := range tests {
		got, err := WSURL(tt.endpoint, tt.sale)
		if tt.wantErr {
			if err == nil {
				t.Errorf("WSURL(%q): expected error", tt.endpoint)
			}
			continue
		}
		if err != nil {
			t.Errorf("WSURL(%q): %v", tt.endpoint, err)
			continue
		}
		if got != tt.want {
			t.Errorf("WSURL(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}
