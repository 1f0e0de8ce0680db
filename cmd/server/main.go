package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-show-booking/internal/booking"
	"github.com/iliyamo/cinema-show-booking/internal/cache"
	"github.com/iliyamo/cinema-show-booking/internal/config"
	"github.com/iliyamo/cinema-show-booking/internal/database"
	"github.com/iliyamo/cinema-show-booking/internal/handler"
	"github.com/iliyamo/cinema-show-booking/internal/logging"
	"github.com/iliyamo/cinema-show-booking/internal/middleware"
	"github.com/iliyamo/cinema-show-booking/internal/notify"
	"github.com/iliyamo/cinema-show-booking/internal/queue"
	"github.com/iliyamo/cinema-show-booking/internal/repository"
	"github.com/iliyamo/cinema-show-booking/internal/router"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(log.GetLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	wmLogger := logging.NewWatermillAdapter(log)

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		LockWaitSec: cfg.DBLockWaitSec,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
	}

	// repositories
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	shows := repository.NewShowRepo(db)
	bookings := repository.NewBookingRepo(db)

	// event bus
	bus, err := newBus(cfg.Notify, rdb, log, wmLogger)
	if err != nil {
		return err
	}
	defer bus.Close()

	engineOpts := []booking.Option{
		booking.WithLockTimeout(cfg.Reserve.LockTimeout),
		booking.WithLogger(log.WithField("component", "booking")),
	}
	var avail *cache.AvailabilityCache
	if rdb != nil {
		avail = cache.NewAvailabilityCache(rdb, cfg.Reserve.AvailabilityTTL)
		engineOpts = append(engineOpts, booking.WithAvailabilityCache(avail))
	}

	var (
		outbox   *repository.Outbox
		relay    *notify.Relay
		notifier *notify.Notifier
	)
	if cfg.Notify.Mode == config.NotifyOutbox {
		outbox = repository.NewOutbox(repository.DefaultOutboxTopic, wmLogger)
		// the relay creates the outbox table, which must exist before the
		// first reservation stages into it
		relay, err = notify.NewRelay(db, outbox.Topic(), bus, wmLogger)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, booking.WithOutbox())
	} else {
		notifier = notify.NewNotifier(bus, notify.Options{
			Topic:          queue.BookingConfirmedTopic,
			Buffer:         cfg.Notify.Buffer,
			Workers:        cfg.Notify.Workers,
			PublishTimeout: cfg.Notify.PublishTimeout,
		}, log)
		defer notifier.Close()
	}

	store := repository.NewStore(db, shows, bookings, outbox)
	var engineNotifier booking.Notifier
	if notifier != nil {
		engineNotifier = notifier
	}
	engine := booking.NewEngine(shows, store, engineNotifier, engineOpts...)
	query := booking.NewQuery(bookings)

	// handlers
	authH := handler.NewAuthHandler(cfg, users, tokens)
	bookingH := handler.NewBookingHandler(engine, query, users).WithCatalog(shows, events)
	var availStore handler.AvailabilityStore
	if avail != nil {
		availStore = avail
	}
	catalogH := handler.NewCatalogHandler(events, shows, availStore)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, catalogH, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterBookings(e, bookingH, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterAdmin(e, catalogH, bookingH, cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "notify_mode": cfg.Notify.Mode, "bus": cfg.Notify.Bus}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if relay != nil {
		g.Go(func() error {
			log.Info("outbox relay started")
			return relay.Run(gctx)
		})
	}

	if cfg.Notify.ConsumerEnabled {
		recorder := queue.NewRecorder(cfg.Notify.BookingLogPath)
		consumerLog := log.WithField("component", "booking-consumer")
		g.Go(func() error {
			var err error
			if cfg.Notify.Bus == config.BusRedis {
				err = (&queue.RedisStreamConsumer{Client: rdb, Recorder: recorder, Logger: wmLogger, Log: consumerLog}).Run(gctx)
			} else {
				err = (&queue.AMQPConsumer{URL: cfg.Notify.AMQPURL, Recorder: recorder, Log: consumerLog}).Run(gctx)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// newBus returns the publisher BookingConfirmed messages are delivered to.
func newBus(nc config.NotifyConfig, rdb *redis.Client, log logrus.FieldLogger, wmLogger *logging.WatermillAdapter) (message.Publisher, error) {
	if nc.Bus == config.BusRedis {
		if rdb == nil {
			return nil, errors.New("EVENT_BUS=redis requires a reachable Redis")
		}
		return notify.NewRedisStreamPublisher(rdb, wmLogger)
	}
	return notify.NewAMQPPublisher(nc.AMQPURL, log.WithField("component", "amqp")), nil
}
