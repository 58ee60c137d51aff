package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"nexus-ware/internal/pkg/redis"
	"nexus-ware/internal/service/ware/domain"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	reserveScriptName = "ware_reserve"
	releaseScriptName = "ware_release"

	skuIndexKey = "ware:skus"
)

// RedisLedger 是 domain.Ledger 的 Redis 实现，预占和释放都在 Lua 脚本中原子完成。
// 同一 SKU 的所有 key 使用 {skuID} 作为 hash tag，集群模式下落在同一个槽。
//
//	ware:stock:{sku}   hash  wareID -> stock
//	ware:locked:{sku}  hash  wareID -> stock_locked
//	ware:name:{sku}    string sku_name
type RedisLedger struct {
	redisClient *redis.Client
}

// NewRedisLedger 创建台账实例并加载 Lua 脚本
func NewRedisLedger(redisClient *redis.Client) (*RedisLedger, error) {
	if err := redisClient.LoadScriptFromContent(reserveScriptName, reserveScript); err != nil {
		return nil, fmt.Errorf("failed to load reserve script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, fmt.Errorf("failed to load release script: %w", err)
	}
	return &RedisLedger{redisClient: redisClient}, nil
}

func stockKey(skuID int64) string  { return fmt.Sprintf("ware:stock:{%d}", skuID) }
func lockedKey(skuID int64) string { return fmt.Sprintf("ware:locked:{%d}", skuID) }
func nameKey(skuID int64) string   { return fmt.Sprintf("ware:name:{%d}", skuID) }

func (l *RedisLedger) Reserve(ctx context.Context, skuID, wareID int64, count int) (bool, error) {
	result, err := l.redisClient.RunScript(ctx, reserveScriptName,
		[]string{stockKey(skuID), lockedKey(skuID)}, wareID, count)
	if err != nil {
		return false, err
	}
	code, ok := result.(int64)
	if !ok {
		return false, errors.Errorf("unexpected result type from reserve script: %T", result)
	}
	return code == 1, nil
}

func (l *RedisLedger) Release(ctx context.Context, skuID, wareID int64, count int) error {
	_, err := l.redisClient.RunScript(ctx, releaseScriptName,
		[]string{lockedKey(skuID)}, wareID, count)
	return err
}

func (l *RedisLedger) CandidateWarehouses(ctx context.Context, skuID int64) ([]int64, error) {
	records, err := l.recordsOf(ctx, skuID)
	if err != nil {
		return nil, err
	}
	var wares []int64
	for _, rec := range records {
		if rec.Available() > 0 {
			wares = append(wares, rec.WareID)
		}
	}
	return wares, nil
}

func (l *RedisLedger) HasStock(ctx context.Context, skuID int64) (bool, error) {
	wares, err := l.CandidateWarehouses(ctx, skuID)
	return len(wares) > 0, err
}

func (l *RedisLedger) AddStock(ctx context.Context, skuID, wareID int64, count int, skuName string) error {
	pipe := l.redisClient.GetClient().TxPipeline()
	pipe.HIncrBy(ctx, stockKey(skuID), strconv.FormatInt(wareID, 10), int64(count))
	if skuName != "" {
		pipe.SetNX(ctx, nameKey(skuID), skuName, 0)
	}
	pipe.SAdd(ctx, skuIndexKey, skuID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "add stock sku %d ware %d", skuID, wareID)
	}
	return nil
}

func (l *RedisLedger) Exists(ctx context.Context, skuID, wareID int64) (bool, error) {
	ok, err := l.redisClient.GetClient().HExists(ctx, stockKey(skuID), strconv.FormatInt(wareID, 10)).Result()
	return ok, errors.Wrap(err, "hexists stock")
}

func (l *RedisLedger) Get(ctx context.Context, skuID, wareID int64) (*domain.InventoryRecord, error) {
	records, err := l.recordsOf(ctx, skuID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].WareID == wareID {
			return &records[i], nil
		}
	}
	return nil, domain.ErrInventoryNotFound
}

func (l *RedisLedger) List(ctx context.Context, filter domain.InventoryFilter, page domain.PageQuery) (*domain.InventoryPage, error) {
	page = page.Normalize()
	var skuIDs []int64
	if filter.SkuID != 0 {
		skuIDs = []int64{filter.SkuID}
	} else {
		members, err := l.redisClient.GetClient().SMembers(ctx, skuIndexKey).Result()
		if err != nil {
			return nil, errors.Wrap(err, "list sku index")
		}
		for _, m := range members {
			if id, err := strconv.ParseInt(m, 10, 64); err == nil {
				skuIDs = append(skuIDs, id)
			}
		}
		sort.Slice(skuIDs, func(i, j int) bool { return skuIDs[i] < skuIDs[j] })
	}

	var all []domain.InventoryRecord
	for _, skuID := range skuIDs {
		records, err := l.recordsOf(ctx, skuID)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if filter.WareID == 0 || rec.WareID == filter.WareID {
				all = append(all, rec)
			}
		}
	}
	return paginate(all, page), nil
}

// recordsOf 读取一个 SKU 在所有仓库的台账，按 wareID 升序
func (l *RedisLedger) recordsOf(ctx context.Context, skuID int64) ([]domain.InventoryRecord, error) {
	pipe := l.redisClient.GetClient().Pipeline()
	stockCmd := pipe.HGetAll(ctx, stockKey(skuID))
	lockedCmd := pipe.HGetAll(ctx, lockedKey(skuID))
	nameCmd := pipe.Get(ctx, nameKey(skuID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, errors.Wrapf(err, "read ledger of sku %d", skuID)
	}

	locked := lockedCmd.Val()
	name := nameCmd.Val()
	records := make([]domain.InventoryRecord, 0, len(stockCmd.Val()))
	for field, raw := range stockCmd.Val() {
		wareID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		stock, _ := strconv.Atoi(raw)
		lockedN, _ := strconv.Atoi(locked[field])
		records = append(records, domain.InventoryRecord{
			SkuID: skuID, WareID: wareID, Stock: stock, StockLocked: lockedN, SkuName: name,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].WareID < records[j].WareID })
	return records, nil
}

var reserveScript = `
-- KEYS[1]: ware:stock:{sku}   KEYS[2]: ware:locked:{sku}
-- ARGV[1]: wareID  ARGV[2]: count
local raw = redis.call('hget', KEYS[1], ARGV[1])
if not raw then
    return 0
end
local stock = tonumber(raw)
local locked = tonumber(redis.call('hget', KEYS[2], ARGV[1]) or '0')
local n = tonumber(ARGV[2])
if n <= 0 or locked + n > stock then
    return 0
end
redis.call('hincrby', KEYS[2], ARGV[1], n)
return 1
`

var releaseScript = `
-- KEYS[1]: ware:locked:{sku}
-- ARGV[1]: wareID  ARGV[2]: count
local locked = tonumber(redis.call('hget', KEYS[1], ARGV[1]) or '0')
local n = tonumber(ARGV[2])
if locked <= n then
    redis.call('hset', KEYS[1], ARGV[1], 0)
    return 0
end
return redis.call('hincrby', KEYS[1], ARGV[1], -n)
`
