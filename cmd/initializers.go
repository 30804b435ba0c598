package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"trustcompute/app/handler"
	"trustcompute/app/router"
	"trustcompute/internal/enclave"
	"trustcompute/internal/model"
	"trustcompute/internal/processor"
	"trustcompute/internal/receipt"
	"trustcompute/internal/service"
	"trustcompute/internal/workorder"
	"trustcompute/pkg/chain"
	"trustcompute/pkg/config"
	"trustcompute/pkg/crypto"
	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"
	"trustcompute/pkg/notification"
	"trustcompute/pkg/notify"
	asynqqueue "trustcompute/pkg/queue/asynq"
	badgerstore "trustcompute/pkg/store/badger"
	mysqlstore "trustcompute/pkg/store/mysql"
	redisstore "trustcompute/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.Sync()
		logger.InfoCtx(app.ctx, "Logging system has been closed")
	})
	return nil
}

// initRedis initializes Redis when an address is configured
func (app *Application) initRedis() error {
	if !app.config.Redis.Enabled() {
		logger.InfoCtx(app.ctx, "Redis not configured, running in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.config)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	return nil
}

// initKV opens the key-value backend holding every table
func (app *Application) initKV() error {
	switch app.config.KV.Backend {
	case config.KVBackendRedis:
		if app.redisClient == nil {
			return fmt.Errorf("kv backend redis requires redis.addr")
		}
		app.kv = redisstore.NewKVStore(app.redisClient, app.config.KV.TablePrefix)

	case config.KVBackendMySQL:
		repo, err := mysqlstore.NewRepository(mysqlstore.BuildDSN(app.config.MySQL))
		if err != nil {
			return err
		}
		if err := repo.AutoMigrate(); err != nil {
			repo.Close()
			return err
		}
		app.kv = repo.KV
		app.registerCleanup(func() {
			repo.Close()
			logger.InfoCtx(app.ctx, "MySQL connection has been closed")
		})
		logger.InfoCtx(app.ctx, "Using MySQL key-value store, database: %s", app.config.MySQL.Database)
		return nil

	default:
		store, err := badgerstore.Open(app.config.KV.BadgerPath)
		if err != nil {
			return err
		}
		app.kv = store
		logger.InfoCtx(app.ctx, "Using embedded key-value store at %s", app.config.KV.BadgerPath)
	}

	kv := app.kv
	app.registerCleanup(func() {
		kv.Close()
		logger.InfoCtx(app.ctx, "Key-value store has been closed")
	})
	return nil
}

// initChain connects the on-chain registry used by the sync job
func (app *Application) initChain() error {
	if !app.config.Chain.Enabled {
		logger.InfoCtx(app.ctx, "Chain registry not enabled, skipping registry sync")
		return nil
	}

	if app.config.Chain.Backend == config.ChainBackendCometBFT {
		registry, err := chain.DialCometBFT(app.config.Chain)
		if err != nil {
			return err
		}
		app.chain = registry
		logger.InfoCtx(app.ctx, "Chain registry connected, rpc: %s", app.config.Chain.RPCAddress)
		return nil
	}

	app.chain = chain.NewMemoryRegistry()
	logger.WarnCtx(app.ctx, "Using in-memory chain registry, on-chain state is not persisted")
	return nil
}

// initEnclave loads the signing key and prepares attestation and execution
func (app *Application) initEnclave() error {
	var (
		key *crypto.SigningKey
		err error
	)
	if app.config.Enclave.SigningKey != "" {
		key, err = crypto.ParseSigningKey(app.config.Enclave.SigningKey)
	} else {
		key, err = crypto.GenerateSigningKey()
		logger.WarnCtx(app.ctx, "No signing key configured, generated an ephemeral key")
	}
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	attestation, err := enclave.NewAttestation(app.config.Enclave)
	if err != nil {
		return err
	}
	if _, err := attestation.InitEnclaveInfo(app.ctx); err != nil {
		return fmt.Errorf("failed to initialize enclave info: %w", err)
	}

	app.signingKey = key
	app.executor = enclave.NewExecutor(key, app.config.Enclave.WorkerID, attestation)
	logger.InfoCtx(app.ctx, "Enclave ready, worker_id: %s, attestation: %s, verification_key: %s",
		app.config.Enclave.WorkerID, app.config.Enclave.Attestation, key.VerificationKey())
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	pageSize := app.config.WorkOrder.PageSize

	app.store = workorder.NewStore(app.kv, app.config.WorkOrder.MaxWorkOrderCount)
	app.receipts = receipt.NewHandler(app.store, pageSize)
	app.workerService = service.NewWorkerService(app.kv, pageSize)
	if app.chain != nil {
		app.syncService = service.NewSyncService(app.workerService, app.chain)
	}

	if app.redisClient != nil {
		app.notifier = notify.NewRedisNotifier(app.redisClient.GetClient())
	} else {
		app.notifier = notify.NewLocalNotifier()
	}

	app.processor = processor.New(
		app.store,
		app.receipts,
		app.executor,
		app.signingKey,
		app.notifier,
		notification.NewWebhookNotifier(),
		app.config.Enclave.WorkerID,
	)

	if err := app.registerSelf(app.ctx); err != nil {
		return err
	}
	return app.workerService.RegistryOnBoot(app.ctx, &model.Registry{
		OrganizationID: app.config.Enclave.OrganizationID,
		URI:            app.config.Enclave.RegistryURI,
		AppTypeIDs:     app.config.Enclave.ApplicationTypeID,
		Status:         model.WorkerStatusActive,
	})
}

// registerSelf publishes this node's enclave worker with its signup data
func (app *Application) registerSelf(ctx context.Context) error {
	signup, err := app.executor.Attestation().GetSignupInfo(ctx, app.signingKey)
	if err != nil {
		return fmt.Errorf("failed to get signup info: %w", err)
	}

	details, err := json.Marshal(model.WorkerDetails{
		WorkOrderSyncURI:  app.config.Enclave.AdvertisedURL,
		WorkOrderAsyncURI: app.config.Enclave.AdvertisedURL,
		WorkerTypeData: &model.WorkerTypeData{
			VerificationKey: signup.VerificationKey,
			ProofData:       signup.ProofData,
		},
	})
	if err != nil {
		return err
	}

	workerID := app.config.Enclave.WorkerID
	exists, err := app.workerService.Exists(ctx, workerID)
	if err != nil {
		return err
	}
	if exists {
		// key material may have changed since the last boot
		return app.workerService.Update(ctx, &model.WorkerUpdateParams{WorkerID: workerID, Details: details})
	}
	return app.workerService.Register(ctx, &model.WorkerRegisterParams{
		WorkerID:          workerID,
		WorkerType:        model.WorkerTypeTEESGX,
		OrganizationID:    app.config.Enclave.OrganizationID,
		ApplicationTypeID: app.config.Enclave.ApplicationTypeID,
		Details:           details,
	})
}

// initRecovery restores scheduler state and finishes interrupted processing
func (app *Application) initRecovery() error {
	state, err := app.store.BootRecover(app.ctx)
	if err != nil {
		return err
	}
	logger.InfoCtx(app.ctx, "Work order state recovered, tracked: %d", state.Count)

	recovered, err := app.processor.Recover(app.ctx)
	if err != nil {
		return err
	}
	if len(recovered) > 0 {
		logger.InfoCtx(app.ctx, "Recovered %d interrupted work orders", len(recovered))
	}
	return nil
}

// initQueue connects the asynq queue that wakes the processor on submission
func (app *Application) initQueue() error {
	if !app.config.Queue.Enabled {
		logger.InfoCtx(app.ctx, "Work order queue not enabled, processor polls only")
		return nil
	}

	manager, err := asynqqueue.NewManager(app.config.Redis, app.config.Queue)
	if err != nil {
		return err
	}
	manager.RegisterProcessor(func(ctx context.Context, workOrderID string) error {
		_, err := app.processor.ProcessOne(ctx, workOrderID)
		return err
	})

	app.queue = manager
	app.registerCleanup(func() {
		manager.Close()
		logger.InfoCtx(app.ctx, "Work order queue has been closed")
	})
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	var dispatcher interfaces.WorkOrderDispatcher
	if app.queue != nil {
		dispatcher = app.queue
	} else if app.jobsManager != nil {
		dispatcher = &jobDispatcher{manager: app.jobsManager}
	}

	app.rpcHandler = handler.NewJSONRPCHandler()
	app.workOrderHandler = handler.NewWorkOrderHandler(
		app.store,
		app.workerService,
		app.receipts,
		dispatcher,
		app.notifier,
		app.signingKey,
		app.config.WorkOrder,
	)
	app.workOrderHandler.Register(app.rpcHandler)
	handler.NewRegistryHandler(app.workerService).Register(app.rpcHandler)
	handler.NewReceiptHandler(app.receipts).Register(app.rpcHandler)

	logger.InfoCtx(app.ctx, "JSON-RPC methods registered: %v", app.rpcHandler.Methods())
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	// Initialize router
	r := router.NewRouter(app.rpcHandler, app.workOrderHandler, app.config.Server.APIKey)

	// Set Gin mode
	gin.SetMode(app.config.Server.Mode)

	// Create Gin engine
	app.ginEngine = gin.New()

	// Setup routes
	r.Setup(app.ginEngine)

	// Create HTTP server
	app.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.ginEngine,
	}

	return nil
}
