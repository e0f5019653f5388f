package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blues/ilr/internal/errs"
	"github.com/shopspring/decimal"
)

type flakyClient struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyClient) GetTransaction(ctx context.Context, hash string) (*TransactionRecord, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return &TransactionRecord{Hash: hash, Status: TxSuccess}, nil
}

func (f *flakyClient) GetBlockHeight(ctx context.Context) (uint64, error) {
	if f.calls.Add(1) <= f.failures {
		return 0, f.err
	}
	return 42, nil
}

func (f *flakyClient) GetBlock(ctx context.Context, number uint64) (*BlockRecord, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return &BlockRecord{Number: number}, nil
}

func (f *flakyClient) SubscribeHeights(ctx context.Context) (<-chan uint64, error) {
	return nil, errs.Validation("not supported")
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsed:      200 * time.Millisecond,
	}
}

func TestRetryingRecoversFromUnavailable(t *testing.T) {
	inner := &flakyClient{failures: 3, err: errs.Unavailable("rpc", errors.New("connection refused"))}
	c := NewRetrying(inner, fastRetry())

	height, err := c.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 42 {
		t.Fatalf("height = %d", height)
	}
	if got := inner.calls.Load(); got != 4 {
		t.Fatalf("calls = %d, want 4", got)
	}
}

func TestRetryingDoesNotRetryNotFound(t *testing.T) {
	inner := &flakyClient{failures: 10, err: errs.NotFound("transaction 0x1")}
	c := NewRetrying(inner, fastRetry())

	_, err := c.GetTransaction(context.Background(), "0x1")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestRetryingGivesUpAfterMaxElapsed(t *testing.T) {
	inner := &flakyClient{failures: 1 << 30, err: errs.Unavailable("rpc", errors.New("timeout"))}
	c := NewRetrying(inner, fastRetry())

	_, err := c.GetBlock(context.Background(), 7)
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if inner.calls.Load() < 2 {
		t.Fatalf("expected several attempts, got %d", inner.calls.Load())
	}
}

func TestWeiToDecimal(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := WeiToDecimal(wei, 18); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("WeiToDecimal = %s, want 1.5", got)
	}
	if got := WeiToDecimal(big.NewInt(250), 0); !got.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("WeiToDecimal = %s, want 250", got)
	}
	if got := WeiToDecimal(nil, 18); !got.IsZero() {
		t.Fatalf("nil value = %s", got)
	}
}

func TestBlockRecordContains(t *testing.T) {
	b := &BlockRecord{Transactions: []TransactionRecord{{Hash: "0xa"}, {Hash: "0xb"}}}
	if !b.Contains("0xb") || b.Contains("0xc") {
		t.Fatalf("Contains mismatch")
	}
}
