package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.key
	return nil
}

// fakeDB keeps app_locks in memory and ignores expiry.
type fakeDB struct {
	mu      sync.Mutex
	holders map[string]string
	renewed int
}

func newFakeDB() *fakeDB {
	return &fakeDB{holders: map[string]string{}}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if f.holders[key] == token {
		delete(f.holders, key)
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)

	switch {
	case strings.Contains(sql, "INSERT"):
		if holder, ok := f.holders[key]; ok && holder != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.holders[key] = token
		return fakeRow{key: key}
	default:
		f.renewed++
		if f.holders[key] != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
}

func (f *fakeDB) steal(key string) {
	f.mu.Lock()
	f.holders[key] = "someone-else"
	f.mu.Unlock()
}

func TestSourceKey(t *testing.T) {
	if got := SourceKey("link", "conspiracy_comments"); got != "link:conspiracy_comments" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestHoldIsExclusive(t *testing.T) {
	db := newFakeDB()
	locker := &Locker{db: db}
	ctx := context.Background()

	err := locker.Hold(ctx, "extract:a", Options{Holder: "w1"}, func(ctx context.Context) error {
		if _, err := locker.Acquire(ctx, "extract:a", Options{Holder: "w2"}); !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lease, err := locker.Acquire(ctx, "extract:a", Options{Holder: "w2"})
	if err != nil {
		t.Fatalf("expected lease after release, got %v", err)
	}
	if !strings.HasPrefix(lease.Token, "w2-") {
		t.Fatalf("expected holder prefix, got %q", lease.Token)
	}
	_ = lease.Release(ctx)
}

func TestHoldReturnsError(t *testing.T) {
	locker := &Locker{db: newFakeDB()}
	want := errors.New("stage failed")
	err := locker.Hold(context.Background(), "clean:a", Options{}, func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected stage error, got %v", err)
	}
}

func TestLostLeaseCancelsContext(t *testing.T) {
	db := newFakeDB()
	locker := &Locker{db: db}

	lease, err := locker.Acquire(context.Background(), "triplets:a", Options{
		TTL:        2 * time.Second,
		RenewEvery: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer lease.Release(context.Background())

	db.steal("triplets:a")

	select {
	case <-lease.Context.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected lease context to be canceled")
	}
	if !errors.Is(context.Cause(lease.Context), ErrLost) {
		t.Fatalf("expected ErrLost cause, got %v", context.Cause(lease.Context))
	}
}

func TestEmptyKey(t *testing.T) {
	locker := &Locker{db: newFakeDB()}
	if _, err := locker.Acquire(context.Background(), " ", Options{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}
