package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/cinex-booking/internal/booking"
	"github.com/metinatakli/cinex-booking/internal/config"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/inventory"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/mailer"
	"github.com/metinatakli/cinex-booking/internal/payment"
	"github.com/metinatakli/cinex-booking/internal/ratelimit"
	"github.com/metinatakli/cinex-booking/internal/registration"
	"github.com/metinatakli/cinex-booking/internal/repository"
	"github.com/metinatakli/cinex-booking/internal/retry"
	"github.com/metinatakli/cinex-booking/internal/scheduler"
	appvalidator "github.com/metinatakli/cinex-booking/internal/validator"
	"github.com/metinatakli/cinex-booking/internal/vcs"
	"github.com/metinatakli/cinex-booking/internal/worker"
	"github.com/metinatakli/cinex-booking/migrations"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	version = vcs.Version()
)

const shutdownTimeout = 30 * time.Second

type Application struct {
	config    *config.Config
	logger    *zap.Logger
	validator *validator.Validate

	users        domain.UserRepository
	inventory    *inventory.Service
	bookings     *booking.Service
	registration *registration.Service

	reconciler *scheduler.Reconciler
	scheduler  *scheduler.Scheduler
	pool       *worker.Pool
	closers    []func()
}

// stores groups the repositories of the selected backend.
type stores struct {
	shows    domain.ShowRepository
	bookings domain.BookingRepository
	users    domain.UserRepository
}

type overrides struct {
	payments domain.PaymentProvider
	mailer   mailer.Mailer
}

type Option func(*overrides)

// WithPaymentProvider replaces the provider selected by the configuration.
func WithPaymentProvider(p domain.PaymentProvider) Option {
	return func(o *overrides) {
		o.payments = p
	}
}

// WithMailer replaces the mailer selected by the configuration.
func WithMailer(m mailer.Mailer) Option {
	return func(o *overrides) {
		o.mailer = m
	}
}

// Run wires the application from cfg and serves HTTP until SIGINT or
// SIGTERM.
func Run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	app, err := New(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Serve(ctx)
}

// New connects the backends selected by cfg and builds the services on top
// of them. Close releases the connections.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (app *Application, err error) {
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}

	app = &Application{
		config:    cfg,
		logger:    logger,
		validator: appvalidator.NewValidator(),
	}

	defer func(built *Application) {
		if err != nil {
			built.Close()
		}
	}(app)

	var (
		db *pgxpool.Pool
		st stores
	)

	switch cfg.Store {
	case config.StorePostgres:
		if cfg.DB.Migrate {
			if err := migrations.Up(cfg.DB.DSN); err != nil {
				return nil, err
			}
			logger.Info("database migrations applied")
		}

		db, err = newDatabasePool(cfg)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)

		st = stores{
			shows:    repository.NewPostgresShowRepository(db),
			bookings: repository.NewPostgresBookingRepository(db),
			users:    repository.NewPostgresUserRepository(db),
		}
	default:
		memory := repository.NewMemoryStore()
		st = stores{
			shows:    memory,
			bookings: memory,
			users:    repository.NewMemoryUserRepository(),
		}
		logger.Warn("using in-memory store, data is lost on restart")
	}

	var locker lock.Locker

	switch cfg.Locker {
	case config.LockerRedis:
		redisClient, err := newRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { redisClient.Close() })

		locker = lock.NewRedisLocker(redisClient, logger)
	default:
		locker = lock.NewLocalLocker()
		logger.Warn("using process-local locks, run a single instance only")
	}

	// Registration only needs single-flight per email, which the database can
	// provide without a lease.
	registrationLocker := locker
	if db != nil {
		registrationLocker = lock.NewAdvisoryLocker(db, logger)
	}

	policy, err := worker.ParsePolicy(cfg.Worker.Policy)
	if err != nil {
		return nil, err
	}
	app.pool = worker.NewPool(cfg.Worker.Size, policy, logger)

	m := o.mailer
	switch {
	case m != nil:
	case cfg.SMTP.Host != "":
		m = mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)
	default:
		m = mailer.NewMemoryMailer(logger)
		logger.Warn("SMTP host not set, emails are logged instead of sent")
	}

	provider := o.payments
	switch {
	case provider != nil:
	case cfg.Payment == config.PaymentStripe:
		stripe.Key = cfg.Stripe.SecretKey
		provider = payment.NewStripePaymentProvider(cfg.Stripe.Currency)
	default:
		provider = payment.NewSimulatedPaymentProvider(cfg.Stripe.SimulatedSuccessRate)
	}

	executor := retry.NewExecutor(logger)
	executor.MaxAttempts = cfg.Booking.RetryMaxAttempts
	executor.BaseDelay = cfg.Booking.RetryBaseDelay

	guard := lock.NewGuard(locker, logger)

	app.users = st.users
	app.inventory = inventory.NewService(st.shows, executor, logger)
	app.bookings = booking.NewService(booking.Dependencies{
		Bookings: st.bookings,
		Shows:    st.shows,
		Payments: provider,
		Retry:    executor,
		Locks:    guard,
		Notifier: booking.NewNotifier(app.pool, m, st.users, st.shows, logger),
		Logger:   logger,
	},
		booking.WithCurrency(cfg.Stripe.Currency),
		booking.WithLockOptions(lock.Options{
			Wait:  cfg.Booking.LockWait,
			Lease: cfg.Booking.LockLease,
		}),
	)

	limits := ratelimit.NewRegistration(ratelimit.Config{
		IPLimit:     cfg.RateLimit.IPLimit,
		IPWindow:    cfg.RateLimit.IPWindow,
		EmailLimit:  cfg.RateLimit.EmailLimit,
		EmailWindow: cfg.RateLimit.EmailWindow,
	})
	app.registration = registration.NewService(st.users, limits, lock.NewGuard(registrationLocker, logger), app.pool, m, logger)

	app.reconciler = scheduler.NewReconciler(st.bookings, app.bookings, guard, logger,
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithCompletionGrace(cfg.Scheduler.CompletionGrace),
	)

	app.scheduler = scheduler.New(logger,
		scheduler.ExpiryJob(app.reconciler, cfg.Scheduler.ExpiryInterval),
		scheduler.CompletionJob(app.reconciler, cfg.Scheduler.CompletionInterval),
		scheduler.PruneJob("prune_registration_limits", limits, cfg.Scheduler.PruneInterval, logger),
	)

	return app, nil
}

// Reconciler exposes the sweeps so they can be triggered outside the schedule.
func (app *Application) Reconciler() *scheduler.Reconciler {
	return app.reconciler
}

// Serve runs the HTTP server and the sweep scheduler until ctx is cancelled,
// then drains background tasks.
func (app *Application) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return app.serve(gctx)
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if perr := app.pool.Shutdown(shutdownCtx); perr != nil {
		app.logger.Warn("background tasks did not finish before shutdown", zap.Error(perr))
	}

	return err
}

// Close releases database and cache connections in reverse order of creation.
func (app *Application) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	if err := errors.Join(redisotel.InstrumentTracing(rdb), redisotel.InstrumentMetrics(rdb)); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("instrument redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}

func newDatabasePool(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConnIdleTime = cfg.DB.MaxIdleTime
	poolConfig.MaxConns = int32(cfg.DB.MaxOpenConns)
	poolConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     zap.NewStdLog(app.logger),
	}

	shutdownError := make(chan error, 1)

	go func() {
		<-ctx.Done()

		app.logger.Info("shutting down server", zap.String("addr", srv.Addr))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownError <- srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info("starting server",
		zap.String("addr", srv.Addr),
		zap.String("env", app.config.Env),
		zap.String("version", version))

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", zap.String("addr", srv.Addr))

	return nil
}
