package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"trustcompute/internal/model"
	"trustcompute/pkg/chain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncWorkers_RegistersThenActivates(t *testing.T) {
	svc := newTestWorkerService(t, 10)
	reg := chain.NewMemoryRegistry()
	sync := NewSyncService(svc, reg)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, registerParams("aa01", "0b01")))

	require.NoError(t, sync.SyncWorkers(ctx))
	assert.Equal(t, []chain.Call{
		{Method: chain.MethodWorkerRegister, WorkerID: "aa01", Status: model.WorkerStatusActive},
		{Method: chain.MethodWorkerSetStatus, WorkerID: "aa01", Status: model.WorkerStatusActive},
	}, reg.Calls())

	// nothing changed, nothing written
	reg.ResetCalls()
	require.NoError(t, sync.SyncWorkers(ctx))
	assert.Empty(t, reg.Calls())
}

func TestSyncWorkers_UpdatesChangedDetails(t *testing.T) {
	svc := newTestWorkerService(t, 10)
	reg := chain.NewMemoryRegistry()
	sync := NewSyncService(svc, reg)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, registerParams("aa01", "0b01")))
	require.NoError(t, sync.SyncWorkers(ctx))
	reg.ResetCalls()

	require.NoError(t, svc.Update(ctx, &model.WorkerUpdateParams{WorkerID: "aa01", Details: json.RawMessage(`{"k":"v"}`)}))
	require.NoError(t, sync.SyncWorkers(ctx))

	calls := reg.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, chain.MethodWorkerUpdate, calls[0].Method)

	onChain, err := reg.WorkerRetrieve(ctx, "aa01")
	require.NoError(t, err)
	assert.JSONEq(t, `{"workOrderSyncUri":"http://localhost:1947","k":"v"}`, string(onChain.Details))
}

func TestSyncWorkers_ReactivatesAfterUpdate(t *testing.T) {
	svc := newTestWorkerService(t, 10)
	reg := chain.NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.WorkerRegister(ctx, &model.Worker{WorkerID: "aa01", Details: json.RawMessage(`{"old":true}`)}))
	require.NoError(t, reg.WorkerSetStatus(ctx, "aa01", model.WorkerStatusOffline))
	reg.ResetCalls()
	require.NoError(t, svc.Register(ctx, registerParams("aa01", "0b01")))

	require.NoError(t, NewSyncService(svc, reg).SyncWorkers(ctx))
	assert.Equal(t, []chain.Call{
		{Method: chain.MethodWorkerUpdate, WorkerID: "aa01", Status: model.WorkerStatusOffline},
		{Method: chain.MethodWorkerSetStatus, WorkerID: "aa01", Status: model.WorkerStatusActive},
	}, reg.Calls())
}

func TestSyncWorkers_DecommissionsChainOnly(t *testing.T) {
	svc := newTestWorkerService(t, 10)
	reg := chain.NewMemoryRegistry()
	sync := NewSyncService(svc, reg)
	ctx := context.Background()

	require.NoError(t, reg.WorkerRegister(ctx, &model.Worker{WorkerID: "aa01", Status: model.WorkerStatusActive}))
	require.NoError(t, reg.WorkerRegister(ctx, &model.Worker{WorkerID: "aa02", Status: model.WorkerStatusDecommissioned}))
	reg.ResetCalls()

	require.NoError(t, sync.SyncWorkers(ctx))
	assert.Equal(t, []chain.Call{
		{Method: chain.MethodWorkerSetStatus, WorkerID: "aa01", Status: model.WorkerStatusDecommissioned},
	}, reg.Calls())

	reg.ResetCalls()
	require.NoError(t, sync.SyncWorkers(ctx))
	assert.Empty(t, reg.Calls())
}

func TestSyncWorkers_RetriesFailedActivation(t *testing.T) {
	svc := newTestWorkerService(t, 10)
	reg := chain.NewMemoryRegistry()
	sync := NewSyncService(svc, reg)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, registerParams("aa01", "0b01")))

	reg.FailOn(chain.MethodWorkerSetStatus, errors.New("node unavailable"))
	assert.Error(t, sync.SyncWorkers(ctx))

	reg.FailOn(chain.MethodWorkerSetStatus, nil)
	reg.ResetCalls()
	require.NoError(t, sync.SyncWorkers(ctx))
	assert.Equal(t, []chain.Call{
		{Method: chain.MethodWorkerUpdate, WorkerID: "aa01", Status: model.WorkerStatusActive},
		{Method: chain.MethodWorkerSetStatus, WorkerID: "aa01", Status: model.WorkerStatusActive},
	}, reg.Calls())
}

func TestSyncRegistry(t *testing.T) {
	reg := chain.NewMemoryRegistry()
	sync := NewSyncService(newTestWorkerService(t, 10), reg)
	ctx := context.Background()
	registry := &model.Registry{OrganizationID: "0b01", URI: "http://a", Status: model.WorkerStatusActive}

	require.NoError(t, sync.SyncRegistry(ctx, registry))
	require.NoError(t, sync.SyncRegistry(ctx, registry))
	registry.URI = "http://b"
	require.NoError(t, sync.SyncRegistry(ctx, registry))
	require.NoError(t, sync.SyncRegistry(ctx, nil))

	calls := reg.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, chain.MethodRegistryAdd, calls[0].Method)
	assert.Equal(t, chain.MethodRegistryUpdate, calls[1].Method)
}

// TestProperty_SyncConverges
//
// Property: After one pass without chain failures, every local worker is ACTIVE on chain
// and every chain-only worker is DECOMMISSIONED.
func TestProperty_SyncConverges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	parameters.MaxSize = 8

	properties := gopter.NewProperties(parameters)

	properties.Property("one pass converges", prop.ForAll(
		func(localCount, chainOnlyCount int) bool {
			svc := newTestWorkerService(t, 10)
			reg := chain.NewMemoryRegistry()
			ctx := context.Background()

			for i := 0; i < localCount; i++ {
				if svc.Register(ctx, registerParams(fmt.Sprintf("aa%02x", i), "0b01")) != nil {
					return false
				}
			}
			for i := 0; i < chainOnlyCount; i++ {
				if reg.WorkerRegister(ctx, &model.Worker{WorkerID: fmt.Sprintf("cc%02x", i), Status: model.WorkerStatusActive}) != nil {
					return false
				}
			}

			if NewSyncService(svc, reg).SyncWorkers(ctx) != nil {
				return false
			}

			for i := 0; i < localCount; i++ {
				w, err := reg.WorkerRetrieve(ctx, fmt.Sprintf("aa%02x", i))
				if err != nil || w.Status != model.WorkerStatusActive {
					return false
				}
			}
			for i := 0; i < chainOnlyCount; i++ {
				w, err := reg.WorkerRetrieve(ctx, fmt.Sprintf("cc%02x", i))
				if err != nil || w.Status != model.WorkerStatusDecommissioned {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 5),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
