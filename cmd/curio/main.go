package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"sync"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/yonagi/curio/internal/config"
	"github.com/yonagi/curio/internal/infra/asset"
	"github.com/yonagi/curio/internal/infra/database"
	"github.com/yonagi/curio/internal/infra/repository"
	"github.com/yonagi/curio/internal/infra/tracing"
	"github.com/yonagi/curio/internal/present/rest"
	"github.com/yonagi/curio/internal/present/rest/middleware"
	"github.com/yonagi/curio/internal/service"
	"github.com/yonagi/curio/internal/usecase"
)

func main() {
	configPath := flag.String("c", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.Server.EnableTrace {
		shutdown, err := tracing.Setup(ctx, cfg.Server.TraceEndpoint, "curio")
		if err != nil {
			slog.Error("failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	db, err := database.NewPostgres(cfg.Server.PostgresDsn)
	if err != nil {
		slog.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.MigratePostgres(db); err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.SeedPostgres(db, cfg.Exchange.Owner, cfg.Exchange.FeeBps); err != nil {
		slog.Error("failed to seed database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := database.NewRedis(cfg.Server.RedisAddr, cfg.Server.RedisPassword, cfg.Server.RedisDB)
	mc := database.NewMemcached(cfg.Server.MemcachedAddr)

	registryRepo := repository.NewRegistryRepository(db, mc)
	exchangeRepo := repository.NewExchangeRepository(db)
	ledger := asset.NewLedger(db, cfg.Exchange.Asset)
	events := service.NewEventService(rdb)

	// one lock for both usecases: every mutating call is one
	// globally-ordered transition
	mu := &sync.Mutex{}

	registryUC := usecase.NewRegistryUsecase(mu, registryRepo, events)
	inboxUC := usecase.NewInboxUsecase(registryRepo, registryUC)
	exchangeUC := usecase.NewExchangeUsecase(
		mu, exchangeRepo, ledger, events,
		cfg.Exchange.Account, cfg.Exchange.Asset, cfg.Exchange.UIFeeBps,
	)

	handler := rest.NewHandler(registryUC, inboxUC, exchangeUC, events, ledger)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if cfg.Server.EnableTrace {
		e.Use(otelecho.Middleware("curio"))
	}
	e.Use(middleware.NewPrincipalMiddleware().IdentifyPrincipal)

	handler.RegisterRoutes(e)

	e.Logger.Fatal(e.Start(cfg.Server.Listen))
}
