package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"crowdsale-ledger/internal/domain"
	"crowdsale-ledger/internal/storage"
)

func key(b byte) domain.Pubkey {
	var pk domain.Pubkey
	pk[0] = b
	return pk
}

func TestAccountStore_CreateAndGet(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	err := store.Atomically(ctx, []domain.Pubkey{key(1)}, func(tx storage.Tx) error {
		return tx.Create(key(1), []byte("hello"))
	})
	if err != nil {
		t.Fatalf("Atomically failed: %v", err)
	}

	got, err := store.Get(ctx, key(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}

	_, err = store.Get(ctx, key(2))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountStore_DuplicateCreate(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	create := func(tx storage.Tx) error { return tx.Create(key(1), []byte{1}) }
	if err := store.Atomically(ctx, []domain.Pubkey{key(1)}, create); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := store.Atomically(ctx, []domain.Pubkey{key(1)}, create)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestAccountStore_RollbackOnError(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Atomically(ctx, []domain.Pubkey{key(1), key(2)}, func(tx storage.Tx) error {
		if err := tx.Put(key(1), []byte{1}); err != nil {
			return err
		}
		if err := tx.Put(key(2), []byte{2}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d accounts after rollback, want 0", store.Len())
	}
}

func TestAccountStore_UndeclaredAccess(t *testing.T) {
	store := NewAccountStore()
	err := store.Atomically(context.Background(), []domain.Pubkey{key(1)}, func(tx storage.Tx) error {
		return tx.Put(key(2), []byte{1})
	})
	if !errors.Is(err, storage.ErrUndeclaredAccount) {
		t.Errorf("expected ErrUndeclaredAccount, got %v", err)
	}
}

func TestAccountStore_ConcurrentIncrements(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()
	counter := key(1)

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Each worker also touches its own private address.
			private := key(byte(10 + i))
			err := store.Atomically(ctx, []domain.Pubkey{private, counter}, func(tx storage.Tx) error {
				var n uint64
				data, err := tx.Get(counter)
				switch {
				case err == nil:
					n = binary.LittleEndian.Uint64(data)
				case !errors.Is(err, storage.ErrNotFound):
					return err
				}
				out := make([]byte, 8)
				binary.LittleEndian.PutUint64(out, n+1)
				if err := tx.Put(counter, out); err != nil {
					return err
				}
				return tx.Create(private, []byte{1})
			})
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := store.Get(ctx, counter)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := binary.LittleEndian.Uint64(data); got != workers {
		t.Errorf("counter = %d, want %d", got, workers)
	}
}

func TestAccountStore_DisjointUnitsRunInParallel(t *testing.T) {
	store := NewAccountStore()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.Atomically(ctx, []domain.Pubkey{key(1)}, func(tx storage.Tx) error {
			close(entered)
			<-release
			return tx.Put(key(1), []byte{1})
		})
	}()
	<-entered

	// A unit on a different address must not wait for the first one.
	finished := make(chan error, 1)
	go func() {
		finished <- store.Atomically(ctx, []domain.Pubkey{key(2)}, func(tx storage.Tx) error {
			return tx.Put(key(2), []byte{2})
		})
	}()

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("disjoint unit: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disjoint unit blocked behind an unrelated lock")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first unit: %v", err)
	}
}

func TestAccountStore_CancelledContext(t *testing.T) {
	store := NewAccountStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Atomically(ctx, []domain.Pubkey{key(1)}, func(tx storage.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn must not run with a cancelled context")
	}
}
