package ixf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/config"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/db"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/history"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/importer"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/importlog"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/infrastructure/store"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/notify"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/staging"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
	"github.com/peeringdb/peeringdb-sub000/internal/shared/events"
	applogger "github.com/peeringdb/peeringdb-sub000/internal/shared/logger"
)

// ServiceFactory creates and wires all service components.
type ServiceFactory struct {
	config *config.Config
	logger *applogger.Logger
}

// NewServiceFactory creates a new service factory.
func NewServiceFactory(cfg *config.Config, logger *applogger.Logger) *ServiceFactory {
	return &ServiceFactory{
		config: cfg,
		logger: logger,
	}
}

// Components holds every wired component.
type Components struct {
	// Infrastructure
	Store    db.Store
	Versions *history.Store
	EventBus events.EventBus
	Sink     notify.Sink

	// Repositories
	Networks    peering.NetworkRepository
	Exchanges   peering.ExchangeRepository
	LANs        peering.IXLanRepository
	Prefixes    peering.PrefixRepository
	SessionRepo peering.SessionRepository
	StagingRepo staging.Repository
	LogRepo     importlog.Repository
	Outbox      notify.OutboxRepository

	// Domain services
	Notifier   *notify.Notifier
	Sessions   peering.Service
	Reconciler *peering.Reconciler
	Resolver   *staging.Resolver
	Staging    *staging.Service
	Router     *staging.Router
	Applier    *staging.Applier
	ImportLogs *importlog.Service
	Importer   *importer.Importer
}

// Close releases the store, the version store and the event bus
func (c *Components) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if c.EventBus != nil {
		keep(c.EventBus.Close())
	}
	if c.Versions != nil {
		keep(c.Versions.Close())
	}
	if c.Store != nil {
		keep(c.Store.Close())
	}
	return first
}

// CreateComponents creates all components in dependency order. Anything
// opened before a failing step is closed again.
func (f *ServiceFactory) CreateComponents() (*Components, error) {
	ctx := context.Background()
	op := f.logger.StartOp(ctx, "create_components")

	components := &Components{}

	stepConfigs := []struct {
		name string
		fn   func(*Components) error
	}{
		{"database_store", f.createDatabaseStore},
		{"history_store", f.createHistoryStore},
		{"repositories", f.createRepositories},
		{"event_system", f.createEventSystem},
		{"notification", f.createNotification},
		{"domain_services", f.createDomainServices},
		{"workflow_services", f.createWorkflowServices},
	}

	for _, stepConfig := range stepConfigs {
		op.Progress("creating component", slog.String("step", stepConfig.name))

		if err := stepConfig.fn(components); err != nil {
			factoryErr := apperrors.WrapWithDomain(err, apperrors.DomainSystem, apperrors.ErrCodeInternal,
				fmt.Sprintf("failed to create %s", stepConfig.name), false)
			op.Fail(factoryErr, "component creation failed", slog.String("step", stepConfig.name))
			components.Close()
			return nil, factoryErr
		}
	}

	op.Complete("all service components created successfully")
	return components, nil
}

func (f *ServiceFactory) createDatabaseStore(c *Components) error {
	cfg := f.config.DB
	f.logger.Debug("initializing database store",
		"driver", cfg.Driver,
		"path", cfg.Path,
		"max_open_conns", cfg.MaxOpenConns)

	s, err := db.NewStore(&cfg)
	if err != nil {
		return apperrors.WrapWithDomain(err, apperrors.DomainDatabase, apperrors.ErrCodeDatabase,
			"failed to initialize database store", false)
	}
	c.Store = s
	return nil
}

func (f *ServiceFactory) createHistoryStore(c *Components) error {
	versions, err := history.Open(f.config.History.Path, f.logger)
	if err != nil {
		return err
	}
	c.Versions = versions
	return nil
}

func (f *ServiceFactory) createRepositories(c *Components) error {
	c.Networks = store.NewNetworkRepository(c.Store)
	c.Exchanges = store.NewExchangeRepository(c.Store)
	c.LANs = store.NewIXLanRepository(c.Store)
	c.Prefixes = store.NewPrefixRepository(c.Store)
	c.SessionRepo = store.NewSessionRepository(c.Store)
	c.StagingRepo = store.NewStagingRepository(c.Store)
	c.LogRepo = store.NewImportLogRepository(c.Store)
	c.Outbox = store.NewOutboxRepository(c.Store)
	return nil
}

func (f *ServiceFactory) createEventSystem(c *Components) error {
	c.EventBus = events.NewGookitEventBus("ixfsync", f.logger)
	return nil
}

func (f *ServiceFactory) createNotification(c *Components) error {
	cfg := f.config.Notification
	if cfg.Debug {
		c.Sink = notify.NewDebugSink(f.logger)
	} else {
		c.Sink = notify.NewLiveSink(c.Outbox, c.EventBus, cfg.RatePerSecond, cfg.Burst, f.logger)
	}

	notifier, err := notify.NewNotifier(c.Sink, cfg, f.logger)
	if err != nil {
		return err
	}
	c.Notifier = notifier
	f.logger.Debug("notifier created", "debug", cfg.Debug)
	return nil
}

func (f *ServiceFactory) createDomainServices(c *Components) error {
	c.Sessions = peering.NewService(c.SessionRepo, c.Networks, c.Versions, f.logger)
	c.Reconciler = peering.NewReconciler(c.Sessions, c.SessionRepo, c.Prefixes, c.Store, f.logger)
	c.ImportLogs = importlog.NewService(c.LogRepo, c.Sessions, c.SessionRepo, c.Versions, c.Store, c.EventBus, f.logger)
	return nil
}

func (f *ServiceFactory) createWorkflowServices(c *Components) error {
	settings := f.config.IXF
	c.Resolver = staging.NewResolver(c.Networks, c.Exchanges, c.Sessions, c.Reconciler, settings.Policy, settings.CacheTTL)
	c.Staging = staging.NewService(c.StagingRepo, c.LANs, c.Resolver, f.logger)
	c.Router = staging.NewRouter(c.StagingRepo, c.Notifier, f.logger)
	c.Applier = staging.NewApplier(c.Reconciler, c.Sessions, c.Versions, c.Router, f.logger)
	c.Importer = importer.New(importer.Dependencies{
		LANs:       c.LANs,
		Sessions:   c.Sessions,
		Reconciler: c.Reconciler,
		Staging:    c.Staging,
		Resolver:   c.Resolver,
		Router:     c.Router,
		Applier:    c.Applier,
		ImportLogs: c.ImportLogs,
		Tx:         c.Store,
		Bus:        c.EventBus,
	}, f.logger)
	return nil
}
