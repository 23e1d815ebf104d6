package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/warehouse-ledger/internal/codec"
	"github.com/rl1809/warehouse-ledger/internal/core/domain"
)

const (
	inventorySnapshotKeyPrefix = "snapshot:inventory:"
	snapshotTTL                = 7 * 24 * time.Hour
)

// saveSnapshotScript only moves a snapshot forward: a checkpoint that lost a
// race with a newer one is dropped.
var saveSnapshotScript = redis.NewScript(`
local key = KEYS[1]
local seq = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'seq')
if current and tonumber(current) > seq then
	return 0
end

redis.call('HSET', key, 'seq', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', key, ARGV[3])
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) LoadInventorySnapshot(ctx context.Context, scope string) (*domain.InventorySnapshot, error) {
	data, err := r.client.HGet(ctx, inventorySnapshotKeyPrefix+scope, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", scope, err)
	}

	var snap domain.InventorySnapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", scope, err)
	}
	return &snap, nil
}

func (r *RedisAdapter) SaveInventorySnapshot(ctx context.Context, snap domain.InventorySnapshot) (bool, error) {
	data, err := codec.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot %s: %w", snap.Scope, err)
	}

	key := inventorySnapshotKeyPrefix + snap.Scope
	result, err := saveSnapshotScript.Run(ctx, r.client, []string{key}, snap.Seq, data, snapshotTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("save snapshot %s: %w", snap.Scope, err)
	}
	return result == 1, nil
}
