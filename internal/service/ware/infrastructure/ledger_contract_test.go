package infrastructure

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nexus-ware/internal/pkg/redis"
	"nexus-ware/internal/service/ware/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 集成测试需要真实的 MySQL / Redis：
// INTEGRATION_TESTS=1 MYSQL_DSN=... REDIS_ADDRS=... go test ./...
func integration(t *testing.T, env string) string {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run against real backends")
	}
	v := os.Getenv(env)
	if v == "" {
		t.Skipf("%s is not set", env)
	}
	return v
}

// uniqueSku 避免多次运行之间的数据冲突
func uniqueSku() int64 {
	return time.Now().UnixNano() % 1_000_000_000_000
}

func ledgers(t *testing.T) map[string]domain.Ledger {
	out := map[string]domain.Ledger{"memory": NewMemoryLedger()}
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		return out
	}
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := OpenMySQL(dsn, 10, 5, true)
		require.NoError(t, err)
		out["gorm"] = NewGormLedger(db)
	}
	if addrs := os.Getenv("REDIS_ADDRS"); addrs != "" {
		client, err := redis.NewClient([]string{addrs}, os.Getenv("REDIS_PASSWORD"), 0)
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		l, err := NewRedisLedger(client)
		require.NoError(t, err)
		out["redis"] = l
	}
	return out
}

func TestLedgerContract(t *testing.T) {
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sku := uniqueSku()

			require.NoError(t, ledger.AddStock(ctx, sku, 2, 5, "测试 SKU"))
			require.NoError(t, ledger.AddStock(ctx, sku, 1, 1, "测试 SKU"))
			require.NoError(t, ledger.AddStock(ctx, sku, 2, 1, ""))

			exists, err := ledger.Exists(ctx, sku, 2)
			require.NoError(t, err)
			assert.True(t, exists)

			wares, err := ledger.CandidateWarehouses(ctx, sku)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2}, wares)

			ok, err := ledger.Reserve(ctx, sku, 1, 2)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = ledger.Reserve(ctx, sku, 2, 6)
			require.NoError(t, err)
			assert.True(t, ok)

			wares, err = ledger.CandidateWarehouses(ctx, sku)
			require.NoError(t, err)
			assert.Equal(t, []int64{1}, wares)

			require.NoError(t, ledger.Release(ctx, sku, 2, 10))
			rec, err := ledger.Get(ctx, sku, 2)
			require.NoError(t, err)
			assert.Equal(t, 6, rec.Stock)
			assert.Equal(t, 0, rec.StockLocked)
			assert.Equal(t, "测试 SKU", rec.SkuName)

			page, err := ledger.List(ctx, domain.InventoryFilter{SkuID: sku}, domain.PageQuery{Page: 1, Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, int64(2), page.TotalCount)

			_, err = ledger.Get(ctx, sku, 99)
			assert.ErrorIs(t, err, domain.ErrInventoryNotFound)
		})
	}
}

func TestLedgerContract_ConcurrentReserve(t *testing.T) {
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sku := uniqueSku()
			require.NoError(t, ledger.AddStock(ctx, sku, 1, 20, ""))

			var wg sync.WaitGroup
			var granted int64
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := ledger.Reserve(ctx, sku, 1, 1)
					assert.NoError(t, err)
					if ok {
						atomic.AddInt64(&granted, 1)
					}
				}()
			}
			wg.Wait()

			rec, err := ledger.Get(ctx, sku, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(20), granted)
			assert.Equal(t, 20, rec.StockLocked)
		})
	}
}

func TestGormJournal_Integration(t *testing.T) {
	dsn := integration(t, "MYSQL_DSN")
	db, err := OpenMySQL(dsn, 10, 5, true)
	require.NoError(t, err)
	j := NewGormJournal(db)
	ctx := context.Background()
	orderSn := "IT-" + time.Now().Format("20060102150405.000000")

	first, err := j.OpenWorkOrder(ctx, orderSn)
	require.NoError(t, err)
	second, err := j.OpenWorkOrder(ctx, orderSn)
	require.NoError(t, err)

	d, err := j.RecordLock(ctx, domain.WorkOrderDetail{TaskID: first.ID, SkuID: 1, WareID: 1, SkuNum: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusLocked, d.LockStatus)

	latest, err := j.GetWorkOrderByOrderSn(ctx, orderSn)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	all, err := j.ListWorkOrdersByOrderSn(ctx, orderSn)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	changed, err := j.MarkUnlocked(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = j.MarkUnlocked(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = j.MarkUnlocked(ctx, -1)
	assert.ErrorIs(t, err, domain.ErrDetailNotFound)
}
