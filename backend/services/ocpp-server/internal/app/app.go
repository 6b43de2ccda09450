package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "evcharge/backend/libs/db"
	libredis "evcharge/backend/libs/redis"
	"evcharge/backend/services/ocpp-server/internal/clients"
	"evcharge/backend/services/ocpp-server/internal/config"
	"evcharge/backend/services/ocpp-server/internal/handlers"
	httpserver "evcharge/backend/services/ocpp-server/internal/http"
	httphandlers "evcharge/backend/services/ocpp-server/internal/http/handlers"
	"evcharge/backend/services/ocpp-server/internal/http/middleware"
	"evcharge/backend/services/ocpp-server/internal/metrics"
	"evcharge/backend/services/ocpp-server/internal/msglog"
	"evcharge/backend/services/ocpp-server/internal/ocpp"
	"evcharge/backend/services/ocpp-server/internal/presence"
	"evcharge/backend/services/ocpp-server/internal/repository"
	"evcharge/backend/services/ocpp-server/internal/service"
	"evcharge/backend/services/ocpp-server/internal/station"
	"evcharge/backend/services/ocpp-server/internal/stationauth"
	"evcharge/backend/services/ocpp-server/internal/ws"
)

// App wires all dependencies for the OCPP server.
type App struct {
	server   *httpserver.Server
	registry *station.Registry
	msgLog   *msglog.Writer
	events   *clients.EventQueue
	db       *sql.DB
	redis    *goredis.Client
	logger   *zap.Logger
}

// New builds the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.Open(ctx, cfg.Database.DSN, libdb.PoolOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &App{db: sqlDB, logger: logger}

	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	logger := a.logger

	if cfg.Database.EnsureSchema {
		if err := repository.EnsureSchema(ctx, a.db); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	stationRepo := repository.NewStationRepository(a.db)
	txRepo := repository.NewTransactionRepository(a.db)
	logRepo := repository.NewOCPPLogRepository(a.db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	ledger := service.NewTransactionStore()
	maxID, err := txRepo.MaxID(ctx)
	if err != nil {
		return fmt.Errorf("load transaction ids: %w", err)
	}
	ledger.Seed(maxID)

	deps := handlers.Deps{
		Stations:          stationRepo,
		Transactions:      txRepo,
		Ledger:            ledger,
		HeartbeatInterval: cfg.OCPP.HeartbeatInterval,
		PersistTimeout:    cfg.OCPP.PersistTimeout,
		Logger:            logger,
	}
	sessionOpts := station.SessionOptions{
		Store:          stationRepo,
		Metrics:        m,
		Logger:         logger,
		CallTimeout:    cfg.OCPP.CallTimeout,
		PersistTimeout: cfg.OCPP.PersistTimeout,
	}
	pingers := map[string]httphandlers.Pinger{"database": a.db}

	client, err := libredis.Open(ctx, libredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	switch {
	case errors.Is(err, libredis.ErrDisabled):
		logger.Info("redis not configured, station presence disabled")
	case err != nil:
		return fmt.Errorf("connect redis: %w", err)
	default:
		a.redis = client
		store := presence.NewStore(client, cfg.Redis.PresenceTTL, cfg.NodeID)
		deps.Presence = store
		sessionOpts.Presence = store
		pingers["redis"] = libredis.Pinger{Client: client}
	}

	if events := clients.NewEventsClient(cfg.Services.EventsURL, cfg.Services.EventsTimeout, logger); events.Enabled() {
		a.events = clients.NewEventQueue(events, cfg.Services.EventsBuffer, logger)
		deps.Events = a.events
	}

	router, err := ocpp.NewRouter(handlers.Routes(deps)...)
	if err != nil {
		return err
	}

	a.msgLog = msglog.NewWriter(logRepo, msglog.Options{
		Workers:      cfg.OCPP.MessageLogWorkers,
		BufferSize:   cfg.OCPP.MessageLogBuffer,
		WriteTimeout: cfg.OCPP.PersistTimeout,
	}, logger, m)

	a.registry = station.NewRegistry()
	sessionOpts.Registry = a.registry
	sessionOpts.MessageLog = a.msgLog
	sessionOpts.Dispatcher = ocpp.NewProcessor(router, a.msgLog, m, logger)

	var stationAuth ws.Authenticator
	if cfg.Auth.StationBasicAuth {
		stationAuth = stationauth.NewAuthenticator(stationRepo, nil)
	}

	gatekeeper := station.NewGatekeeper(ctx, sessionOpts, cfg.OCPP.LookupTimeout)
	wsServer := ws.NewServer(gatekeeper, stationAuth, ws.Options{
		Conn: ws.ConnOptions{
			WriteTimeout: cfg.WebSocket.WriteTimeout,
			PongWait:     cfg.WebSocket.PongWait,
			PingPeriod:   cfg.WebSocket.PingInterval,
			ReadLimit:    cfg.WebSocket.ReadLimit,
		},
		AuthTimeout: cfg.OCPP.LookupTimeout,
	}, logger)

	var auth func(http.Handler) http.Handler
	if cfg.Auth.JWTSecret != "" {
		auth = middleware.AuthMiddleware(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("OCPP_JWT_SECRET not set, operator API is unauthenticated")
	}

	handler := httpserver.NewRouter(httpserver.RouterDeps{
		Chargers:     httphandlers.NewChargersHandlers(stationRepo, a.registry, station.NewCommander(a.registry), logger),
		Transactions: httphandlers.NewTransactionsHandlers(txRepo, logger),
		Messages:     httphandlers.NewMessagesHandlers(logRepo, logger),
		Health:       httphandlers.NewHealthHandler(pingers, a.registry.Len),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		OCPP:         wsServer.HandleWS,
		Auth:         auth,
		Logger:       logger,
	})
	a.server = httpserver.NewServer(cfg.HTTPAddress(), handler, cfg.HTTP.WriteTimeout, logger)
	return nil
}

// Run serves until ctx is cancelled, then closes every station session.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("closing station sessions", zap.Int("sessions", a.registry.Len()))
		a.registry.CloseAll(station.ReasonShutdown)
		return nil
	})
	return g.Wait()
}

// Close releases resources. The message log and event queue are drained before the database closes.
func (a *App) Close() {
	if a.msgLog != nil {
		a.msgLog.Close()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
