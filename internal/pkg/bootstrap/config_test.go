package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Ware, cfg.Ware)
	assert.Equal(t, 8090, cfg.Service.Port)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ware-service.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  port: 9100
ware:
  ledgerDriver: redis
  lockTTL: 15s
  orderLookupTimeout: 500ms
  topics:
    stockLockedDelay: delay_topic_1m
infra:
  kafka:
    brokers: [kafka-1:9092, kafka-2:9092]
`), 0o644))

	t.Setenv("WARE_LOCK_DRIVER", "local")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092,k3:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Service.Port)
	assert.Equal(t, "redis", cfg.Ware.LedgerDriver)
	assert.Equal(t, "local", cfg.Ware.LockDriver)
	assert.Equal(t, 15*time.Second, cfg.Ware.LockTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Ware.OrderLookupTimeout)
	assert.Equal(t, "delay_topic_1m", cfg.Ware.Topics.StockLockedDelay)
	assert.Equal(t, "stock-locked", cfg.Ware.Topics.StockLocked, "unset keys keep defaults")
	assert.Equal(t, []string{"k1:9092", "k2:9092", "k3:9092"}, cfg.Infra.Kafka.Brokers)
}

func TestLoad_InvalidYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestOverlay_DoesNotMutateBase(t *testing.T) {
	base := DefaultConfig()
	next, err := Overlay(base, []byte(`ware: {releasePolicy: 'status == "CANCELLED"', maxRetries: 5}`))
	require.NoError(t, err)

	assert.Equal(t, `status == "CANCELLED"`, next.Ware.ReleasePolicy)
	assert.Equal(t, 5, next.Ware.MaxRetries)
	assert.Equal(t, DefaultConfig().Ware.ReleasePolicy, base.Ware.ReleasePolicy)
	assert.Equal(t, 3, base.Ware.MaxRetries)
}

func TestMySQLConfig_FormatDSN(t *testing.T) {
	explicit := MySQLConfig{DSN: "u:p@tcp(db:3306)/wms"}
	assert.Equal(t, "u:p@tcp(db:3306)/wms", explicit.FormatDSN())

	dsn := MySQLConfig{Host: "db", Port: 3307, User: "root", Password: "secret", Database: "gulimall_wms"}.FormatDSN()
	assert.Contains(t, dsn, "root:secret@tcp(db:3307)/gulimall_wms?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestCurrentConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ware.MaxRetries = 9
	SetCurrentConfig(cfg)
	t.Cleanup(func() { SetCurrentConfig(DefaultConfig()) })

	assert.Equal(t, 9, GetCurrentConfig().Ware.MaxRetries)
}
