package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/egms/storeledger/internal/core/domain"
)

const balanceKeyPrefix = "balance:"

// RedisAdapter mirrors committed on-hand balances so dashboards can poll
// without touching the primary database. Values are written after commit;
// readers that miss fall back to the database.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

type balanceEntry struct {
	Qty  string `json:"qty"`
	Unit string `json:"unit"`
}

func (r *RedisAdapter) SetBalance(ctx context.Context, itemName string, b domain.Balance) error {
	payload, err := json.Marshal(balanceEntry{Qty: b.Qty.String(), Unit: b.Unit})
	if err != nil {
		return fmt.Errorf("encode balance: %w", err)
	}
	return r.client.Set(ctx, balanceKeyPrefix+itemName, payload, 0).Err()
}

func (r *RedisAdapter) GetBalance(ctx context.Context, itemName string) (domain.Balance, bool, error) {
	payload, err := r.client.Get(ctx, balanceKeyPrefix+itemName).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Balance{}, false, nil
	}
	if err != nil {
		return domain.Balance{}, false, err
	}
	var entry balanceEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return domain.Balance{}, false, fmt.Errorf("decode balance: %w", err)
	}
	qty, err := decimal.NewFromString(entry.Qty)
	if err != nil {
		return domain.Balance{}, false, fmt.Errorf("parse balance qty: %w", err)
	}
	return domain.Balance{Qty: qty, Unit: entry.Unit}, true, nil
}

func (r *RedisAdapter) DeleteBalance(ctx context.Context, itemName string) error {
	return r.client.Del(ctx, balanceKeyPrefix+itemName).Err()
}

func (r *RedisAdapter) FlushBalances(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, balanceKeyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
