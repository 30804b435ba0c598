package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 8080
  mode: debug
kv:
  backend: redis
  table_prefix: "tcs:"
redis:
  addr: 127.0.0.1:6379
work_order:
  max_work_order_count: 3
  page_size: 2
  sync_mode: true
  sync_timeout: 5s
enclave:
  attestation: dcap
  quote_service_url: http://quote:8000
  application_type_ids: ["11aa22bb"]
  advertised_url: http://worker-1.tcs.svc:8080
chain:
  enabled: true
  backend: cometbft
  rpc_address: http://localhost:26657
  sync_interval: 1m
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, KVBackendRedis, cfg.KV.Backend)
	assert.Equal(t, "tcs:", cfg.KV.TablePrefix)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 3, cfg.WorkOrder.MaxWorkOrderCount)
	assert.Equal(t, 2, cfg.WorkOrder.PageSize)
	assert.True(t, cfg.WorkOrder.SyncMode)
	assert.Equal(t, 5*time.Second, cfg.WorkOrder.SyncTimeout)
	assert.Equal(t, AttestationDCAP, cfg.Enclave.Attestation)
	assert.Equal(t, []string{"11aa22bb"}, cfg.Enclave.ApplicationTypeID)
	assert.Equal(t, DefaultWorkerID, cfg.Enclave.WorkerID)
	assert.Equal(t, "http://worker-1.tcs.svc:8080", cfg.Enclave.AdvertisedURL)
	assert.Equal(t, ChainBackendCometBFT, cfg.Chain.Backend)
	assert.Equal(t, time.Minute, cfg.Chain.SyncInterval)
	assert.Equal(t, DefaultRPCTimeout, cfg.Chain.RPCTimeout)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, KVBackendBadger, cfg.KV.Backend)
	assert.Equal(t, DefaultBadgerPath, cfg.KV.BadgerPath)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, DefaultPageSize, cfg.WorkOrder.PageSize)
	assert.Equal(t, DefaultMaxWorkOrderCount, cfg.WorkOrder.MaxWorkOrderCount)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", DefaultPort), cfg.Enclave.AdvertisedURL)
	assert.False(t, cfg.Chain.Enabled)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestInit_FromConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))
	t.Setenv("CONFIG_PATH", path)

	require.NoError(t, Init())
	require.NotNil(t, GlobalConfig)
	assert.Equal(t, 8080, GlobalConfig.Server.Port)
}
