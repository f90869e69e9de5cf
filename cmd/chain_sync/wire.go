package main

import (
	"context"
	"fmt"
	"sort"

	"chain_sync/internal/app/adapter/algorand"
	"chain_sync/internal/app/adapter/evm"
	"chain_sync/internal/app/port"
	"chain_sync/internal/app/service"
	"chain_sync/internal/infrastructure/configloader"
	"chain_sync/internal/infrastructure/events"
	"chain_sync/internal/infrastructure/lock"
	"chain_sync/internal/infrastructure/network/client"
	networkdefinition "chain_sync/internal/infrastructure/network/definition"
	"chain_sync/internal/infrastructure/partner"
	"chain_sync/internal/infrastructure/storage/memory"
	"chain_sync/internal/infrastructure/storage/postgres"
	"chain_sync/internal/pkg/scheduler"

	"go.uber.org/zap"
)

// application holds everything main has to start and later release.
type application struct {
	syncers    []port.Syncer
	schedulers map[string]*scheduler.Scheduler
	closers    []func()
}

func (a *application) onClose(fn func()) { a.closers = append(a.closers, fn) }

// close releases resources in reverse order of acquisition.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	tokens  port.TokenStore
	holders port.HolderStore
	txs     port.TransactionStore
}

func build(ctx context.Context, cfg *configloader.Config, log *zap.Logger) (*application, error) {
	app := &application{schedulers: make(map[string]*scheduler.Scheduler)}
	built := false
	defer func() {
		if !built {
			app.close()
		}
	}()

	st, err := openStores(ctx, cfg, app, log)
	if err != nil {
		return nil, err
	}
	runLock, err := openLock(ctx, cfg, app, log)
	if err != nil {
		return nil, err
	}
	publisher, err := openPublisher(ctx, cfg, app, log)
	if err != nil {
		return nil, err
	}

	reconciler := service.NewReconciler(st.tokens, st.holders, st.txs, log)
	definitions := networkdefinition.NewNetworkDefinitionProvider(cfg.Networks, log)
	evmClients := client.NewEVMClientProvider(definitions, cfg.Network.ConnectionTimeout, cfg.Network.RPCCallTimeout, log)
	if c, ok := evmClients.(interface{ Close() }); ok {
		app.onClose(c.Close)
	}

	presets := evm.Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Partner(name)
		if !pc.IsEnabled() {
			log.Info("Adapter disabled", zap.String("adapter", name))
			continue
		}
		params := presets[name]
		applyOverrides(&params.Holders, &params.Scheduler, pc)
		if pc.FromBlock > 0 {
			params.FromBlock = pc.FromBlock
		}

		span := cfg.Network.LogBlockSpan
		if def, ok := definitions.GetNetworkDefinitionByName(params.Network); ok && def.LogBlockSpan > 0 {
			span = def.LogBlockSpan
		}

		sched := app.scheduler(name, params.Scheduler)
		source := partnerSource(name, pc.API, log)
		opts := []evm.Option{
			evm.WithLogBlockSpan(span),
			evm.WithBalanceBatchSize(cfg.Network.BalanceBatchSize),
			evm.WithReconciler(reconciler),
		}
		if params.MergePartnerCandidates && source != nil {
			opts = append(opts, evm.WithPartnerCandidates(source))
		}

		strategy := evm.New(params, evmClients, sched, log, opts...)
		app.syncers = append(app.syncers, service.NewSyncService(service.SyncConfig{
			Name:           name,
			ApplicationID:  params.ApplicationID,
			HoldersEnabled: params.Holders,
			MaxParallel:    pc.MaxParallel,
		}, strategy, reconciler, source, runLock, log))
	}

	if pc := cfg.Partner("lofty"); pc.IsEnabled() {
		params := algorand.Lofty()
		holders := true
		applyOverrides(&holders, &params.Scheduler, pc)

		indexerURL := cfg.Algorand.IndexerURL
		if indexerURL == "" {
			indexerURL = algorand.DefaultIndexer
		}
		indexer := client.NewAlgorandIndexerClient(indexerURL, cfg.Algorand.APIToken, cfg.Algorand.RequestTimeout, log)
		strategy := algorand.New(params, indexer, app.scheduler(params.Partner, params.Scheduler), reconciler, publisher, log)
		app.syncers = append(app.syncers, service.NewSyncService(service.SyncConfig{
			Name:           params.Partner,
			ApplicationID:  params.ApplicationID,
			HoldersEnabled: holders,
			MaxParallel:    pc.MaxParallel,
		}, strategy, reconciler, nil, runLock, log))
	}

	if cfg.Partner("binaryx").IsEnabled() {
		app.syncers = append(app.syncers, service.NewUnimplemented("binaryx"))
	}

	log.Info("Adapters registered", zap.Int("count", len(app.syncers)))
	built = true
	return app, nil
}

func (a *application) scheduler(name string, cfg scheduler.Config) *scheduler.Scheduler {
	s := scheduler.New(cfg)
	a.schedulers[name] = s
	a.onClose(s.Close)
	return s
}

func applyOverrides(holders *bool, sched *scheduler.Config, pc configloader.PartnerConfig) {
	if pc.Holders != nil {
		*holders = *pc.Holders
	}
	if pc.Scheduler != nil {
		*sched = *pc.Scheduler
	}
}

// partnerSource returns the metadata API of an EVM adapter, or nil.
func partnerSource(name string, cfg partner.Config, log *zap.Logger) port.PartnerMetadataSource {
	switch name {
	case "realt":
		return partner.NewRealToken(cfg, log)
	case "oceanpoint":
		return partner.NewBlocksquare(cfg, log)
	case "reental":
		return partner.NewReental(cfg, log)
	default:
		return nil
	}
}

func openStores(ctx context.Context, cfg *configloader.Config, app *application, log *zap.Logger) (stores, error) {
	if cfg.Storage.Driver != configloader.StoragePostgres {
		log.Info("Using in-memory stores")
		return stores{
			tokens:  memory.NewTokenStore(),
			holders: memory.NewHolderStore(),
			txs:     memory.NewTransactionStore(),
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Storage.DSN)
	if err != nil {
		return stores{}, err
	}
	app.onClose(pool.Close)

	if cfg.Storage.Migrate {
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return stores{}, err
		}
		log.Info("Postgres migrations applied")
	}
	return stores{
		tokens:  postgres.NewTokenStore(pool),
		holders: postgres.NewHolderStore(pool),
		txs:     postgres.NewTransactionStore(pool),
	}, nil
}

func openLock(ctx context.Context, cfg *configloader.Config, app *application, log *zap.Logger) (port.RunLock, error) {
	if cfg.Lock.Driver != configloader.LockRedis {
		return lock.NewLocal(), nil
	}
	l, err := lock.NewRedis(ctx, cfg.Lock.RedisURL, cfg.Lock.Prefix, cfg.Lock.TTL, log)
	if err != nil {
		return nil, err
	}
	app.onClose(func() {
		if err := l.Close(); err != nil {
			log.Warn("Failed to close redis lock", zap.Error(err))
		}
	})
	return l, nil
}

func openPublisher(ctx context.Context, cfg *configloader.Config, app *application, log *zap.Logger) (port.EventPublisher, error) {
	if cfg.Events.NatsURL == "" {
		return events.Noop{}, nil
	}
	nc, js, err := events.ConnectNATS(cfg.Events.NatsURL, log)
	if err != nil {
		return nil, err
	}
	app.onClose(func() {
		if err := nc.Drain(); err != nil {
			log.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	})
	if err := events.EnsureStream(ctx, js, cfg.Events.SubjectPrefix); err != nil {
		return nil, fmt.Errorf("ensure transaction stream: %w", err)
	}
	return events.NewPublisher(js, cfg.Events.SubjectPrefix, log), nil
}
