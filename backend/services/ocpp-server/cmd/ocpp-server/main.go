package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	libdb "evcharge/backend/libs/db"
	"evcharge/backend/libs/logging"
	"evcharge/backend/services/ocpp-server/internal/app"
	"evcharge/backend/services/ocpp-server/internal/config"
	"evcharge/backend/services/ocpp-server/internal/repository"
	"evcharge/backend/services/ocpp-server/internal/stationauth"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "set-station-key" {
		if err := setStationKey(ctx, cfg, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger, err := logging.NewLogger("ocpp-server")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init ocpp server", zap.Error(err))
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ocpp server stopped with error", zap.Error(err))
	}
}

// setStationKey stores the Basic auth key of a provisioned station.
func setStationKey(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: ocpp-server set-station-key <station-id> <key>")
	}
	hash, err := stationauth.NewBcryptHasher(0).Hash(args[1])
	if err != nil {
		return err
	}

	db, err := libdb.Open(ctx, cfg.Database.DSN, libdb.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	return repository.NewStationRepository(db).SetAuthKeyHash(ctx, args[0], hash)
}
