package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blues/ilr/internal/chain"
	"github.com/blues/ilr/internal/errs"
	"github.com/shopspring/decimal"
)

func TestMineAndReorg(t *testing.T) {
	ctx := context.Background()
	c := New()

	hash := c.Send("0xsender", "0xwallet", decimal.NewFromInt(100))
	tx, err := c.GetTransaction(ctx, hash)
	if err != nil || tx.Mined() || tx.Status != chain.TxPending {
		t.Fatalf("pending tx = %+v, %v", tx, err)
	}

	c.MineTo(9)
	n := c.Mine(hash)
	if n != 10 {
		t.Fatalf("mined in block %d, want 10", n)
	}
	tx, err = c.GetTransaction(ctx, hash)
	if err != nil || !tx.Mined() || *tx.BlockNumber != 10 || tx.Status != chain.TxSuccess {
		t.Fatalf("mined tx = %+v, %v", tx, err)
	}
	oldHash := tx.BlockHash

	c.Reorg(10, false)
	if _, err := c.GetTransaction(ctx, hash); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("tx after reorg err = %v, want not found", err)
	}
	c.Mine()
	b, err := c.GetBlock(ctx, 10)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if b.Hash == oldHash || b.Contains(hash) {
		t.Fatalf("replacement block not distinct: %+v", b)
	}
}

func TestReorgRequeue(t *testing.T) {
	ctx := context.Background()
	c := New()
	hash := c.Send("0xs", "0xw", decimal.NewFromInt(1))
	c.Mine(hash)

	c.Reorg(1, true)
	tx, err := c.GetTransaction(ctx, hash)
	if err != nil || tx.Mined() {
		t.Fatalf("requeued tx = %+v, %v", tx, err)
	}
	n := c.Mine(hash)
	tx, _ = c.GetTransaction(ctx, hash)
	if *tx.BlockNumber != n {
		t.Fatalf("re-mined at %d, want %d", *tx.BlockNumber, n)
	}
}

func TestUnavailable(t *testing.T) {
	c := New()
	c.SetUnavailable(true)
	if _, err := c.GetBlockHeight(context.Background()); !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	c.SetUnavailable(false)
	if _, err := c.GetBlockHeight(context.Background()); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestSubscribeHeights(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())

	heights, err := c.SubscribeHeights(ctx)
	if err != nil {
		t.Fatalf("SubscribeHeights: %v", err)
	}
	c.MineEmpty(2)

	for want := uint64(1); want <= 2; want++ {
		select {
		case got := <-heights:
			if got != want {
				t.Fatalf("height = %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no height %d", want)
		}
	}

	cancel()
	select {
	case _, ok := <-heights:
		if ok {
			t.Fatalf("channel still open")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}
