package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/college-bus-booking/internal/config"
	"github.com/iliyamo/college-bus-booking/internal/database"
	"github.com/iliyamo/college-bus-booking/internal/engine"
	"github.com/iliyamo/college-bus-booking/internal/feed"
	"github.com/iliyamo/college-bus-booking/internal/handler"
	"github.com/iliyamo/college-bus-booking/internal/logging"
	"github.com/iliyamo/college-bus-booking/internal/middleware"
	"github.com/iliyamo/college-bus-booking/internal/notify"
	"github.com/iliyamo/college-bus-booking/internal/repository"
	"github.com/iliyamo/college-bus-booking/internal/router"
	"github.com/iliyamo/college-bus-booking/internal/sweeper"
)

func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort,
		Name: cfg.DBName, MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}
	st := repository.NewStore(db)

	// Redis is optional: without it there is no cache, no rate limit, no
	// cron sweep and the feed stays inside this process.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, running degraded")
	} else {
		defer rdb.Close()
	}

	var changes *feed.Feed
	if cfg.FeedBackend == "redis" && rdb != nil {
		if changes, err = feed.NewRedis(rdb, logging.Watermill(log)); err != nil {
			return err
		}
	} else {
		changes = feed.NewInProcess(logging.Watermill(log))
	}
	defer changes.Close()

	eng := engine.New(st, changes, log,
		engine.WithHoldDuration(cfg.HoldDuration),
		engine.WithNotifier(notify.NewPublisher(cfg.RabbitMQURL, log)),
	)
	defer eng.Wait()
	sw := sweeper.New(eng, st, log, sweeper.WithInterval(cfg.SweepInterval), sweeper.WithBatch(cfg.SweepBatch))

	if cfg.SeedDemoTrip {
		if err := seedDemoTrip(ctx, st, time.Now()); err != nil {
			return err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))
	router.RegisterRoutes(e)
	router.RegisterPublic(e,
		handler.NewTripHandler(st),
		handler.NewEventsHandler(st, changes, sw, log),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	)
	router.RegisterHolder(e,
		handler.NewSeatHandler(eng),
		handler.NewBookingHandler(st, eng),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	)
	router.RegisterAdmin(e, handler.NewTripHandler(st), cfg.JWTSecret)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.SweepCron != "" && rdb != nil {
		if err := startCronSweep(ctx, g, cfg.SweepCron, sw, log); err != nil {
			return err
		}
	} else {
		g.Go(func() error { return sw.Run(ctx) })
	}

	bookingLog, err := openBookingLog()
	if err != nil {
		return err
	}
	defer bookingLog.Close()
	consumer := notify.NewConsumer(cfg.RabbitMQURL, bookingLog, log)
	g.Go(func() error { return consumer.Run(ctx) })

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		return serve(ctx, e, addr)
	})
	return g.Wait()
}

// serve runs e until ctx is cancelled and then shuts it down.  Requests
// inherit ctx, so open event streams end as soon as shutdown begins instead
// of holding it up.
func serve(ctx context.Context, e *echo.Echo, addr string) error {
	e.Server.BaseContext = func(net.Listener) context.Context { return ctx }

	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// startCronSweep runs the sweep as an asynq periodic task so that only one
// instance sweeps per tick, whatever the number of replicas.
func startCronSweep(ctx context.Context, g *errgroup.Group, cronspec string, sw *sweeper.Sweeper, log zerolog.Logger) error {
	redisOpt := config.AsynqRedis()

	srv := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 1})
	mux := asynq.NewServeMux()
	sweeper.Register(mux, sw)
	if err := srv.Start(mux); err != nil {
		return err
	}

	sched := asynq.NewScheduler(redisOpt, nil)
	id, err := sweeper.Schedule(sched, cronspec)
	if err != nil {
		srv.Shutdown()
		return err
	}
	if err := sched.Start(); err != nil {
		srv.Shutdown()
		return err
	}
	log.Info().Str("entry_id", id).Str("cron", cronspec).Msg("expiry sweep scheduled")

	g.Go(func() error {
		<-ctx.Done()
		sched.Shutdown()
		srv.Shutdown()
		return nil
	})
	return nil
}

func openBookingLog() (*os.File, error) {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join("logs", "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			log.Info().Str("method", v.Method).Str("path", v.URIPath).
				Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	})
}
