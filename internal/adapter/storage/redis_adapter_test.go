package storage

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/egms/storeledger/internal/core/domain"
)

func getRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return rdb
}

func TestBalanceMirror_RoundTrip(t *testing.T) {
	rdb := getRedis(t)
	defer rdb.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(rdb)
	defer adapter.DeleteBalance(ctx, "test-cement")

	want := domain.Balance{Qty: decimal.RequireFromString("70.5"), Unit: "bag"}
	if err := adapter.SetBalance(ctx, "test-cement", want); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	got, ok, err := adapter.GetBalance(ctx, "test-cement")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !ok {
		t.Fatal("expected balance present")
	}
	if !got.Qty.Equal(want.Qty) || got.Unit != want.Unit {
		t.Errorf("expected %s %s, got %s %s", want.Qty, want.Unit, got.Qty, got.Unit)
	}
}

func TestBalanceMirror_Missing(t *testing.T) {
	rdb := getRedis(t)
	defer rdb.Close()

	_, ok, err := NewRedisAdapter(rdb).GetBalance(context.Background(), "test-absent")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if ok {
		t.Error("expected absent balance")
	}
}

func TestBalanceMirror_Flush(t *testing.T) {
	rdb := getRedis(t)
	defer rdb.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(rdb)

	for _, name := range []string{"test-a", "test-b"} {
		if err := adapter.SetBalance(ctx, name, domain.Balance{Qty: decimal.NewFromInt(1), Unit: "u"}); err != nil {
			t.Fatalf("set balance: %v", err)
		}
	}
	if err := adapter.FlushBalances(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok, _ := adapter.GetBalance(ctx, "test-a"); ok {
		t.Error("expected flushed balance to be gone")
	}
}
