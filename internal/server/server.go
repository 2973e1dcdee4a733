package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/gristips/gristips/internal"
	"github.com/gristips/gristips/internal/encrypt"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/ratelimit"
	"github.com/gristips/gristips/internal/repeat"
	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/providers"
	"github.com/gristips/gristips/metrics"
)

// identityProvider is the part of the ProConnect client used by the login
// handlers.
type identityProvider interface {
	AuthCodeURL(ctx context.Context, state, nonce string) (string, error)
	Exchange(ctx context.Context, code, nonce string) (*providers.Identity, error)
	EndSessionURL(ctx context.Context, idTokenHint, state string) (string, error)
}

type Server struct {
	options         Options
	db              *gorm.DB
	redis           *redis.Client
	encryptor       *encrypt.Encryptor
	provider        identityProvider
	limits          rateLimits
	grist           gristOptions
	Addrs           Addrs
	routines        []routine
	metricsRegistry *prometheus.Registry
}

// gristOptions are shared by the Grist clients of every user.
type gristOptions struct {
	httpClient *http.Client
	retrier    *repeat.Retrier
	limiter    *rate.Limiter
}

type Addrs struct {
	HTTP    net.Addr
	Metrics net.Addr
}

// New creates a Server, and initializes it. The returned Server is ready to run.
func New(options Options) (*Server, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	driver, err := newDBDriver(options.DB)
	if err != nil {
		return nil, fmt.Errorf("db driver: %w", err)
	}

	db, err := data.NewDB(driver)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	server, err := newServer(options, db)
	if err != nil {
		return nil, err
	}

	if server.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := waitForRedis(ctx, server.redis, repeat.NewRetrier(repeat.RetryOptions{MaxAttempts: 5})); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	if options.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     options.SentryDSN,
			Release: internal.FullVersion(),
		})
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
	}

	if err := server.listen(); err != nil {
		return nil, fmt.Errorf("listening: %w", err)
	}

	server.setupBackgroundJobs()

	return server, nil
}

// newServer creates a Server that uses db, without listening.
func newServer(options Options, db *gorm.DB) (*Server, error) {
	options = options.withDefaults()

	server := &Server{
		options:         options,
		db:              db,
		metricsRegistry: setupMetrics(db),
	}

	var err error
	server.encryptor, err = encrypt.New(options.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}

	server.redis, err = ratelimit.NewRedisClient(options.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	server.limits, err = newRateLimits(server.redis, options.RateLimits)
	if err != nil {
		return nil, err
	}

	server.provider = providers.NewProConnect(options.ProConnect)
	server.grist = newGristOptions(options.Grist)

	return server, nil
}

// waitForRedis returns once Redis answers a PING. Connection failures are
// retried, so that the server can start alongside Redis.
func waitForRedis(ctx context.Context, client *redis.Client, retrier *repeat.Retrier) error {
	return retrier.Do(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func newDBDriver(options DBOptions) (gorm.Dialector, error) {
	if options.SQLiteFile != "" {
		return data.NewSQLiteDriver(options.SQLiteFile)
	}
	return data.NewPostgresDriver(options.postgresConnectionString())
}

func newGristOptions(options GristOptions) gristOptions {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	result := gristOptions{
		httpClient: &http.Client{Timeout: timeout},
		retrier: repeat.NewRetrier(repeat.RetryOptions{
			MaxAttempts: options.MaxAttempts,
			BaseDelay:   options.BaseDelay,
			MaxDelay:    options.MaxDelay,
			OnRetry: func(state repeat.RetryState, err error) {
				gristRetries.WithLabelValues(repeat.Classify(err).String()).Inc()
			},
		}),
	}

	if options.RequestsPerSecond > 0 {
		burst := options.Burst
		if burst <= 0 {
			burst = 1
		}
		result.limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
	}
	return result
}

// DB returns an instance of a database connection pool that is used by the server.
// It is primarily used by tests to create fixture data.
func (s *Server) DB() *gorm.DB {
	return s.db
}

func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for i := range s.routines {
		group.Go(s.routines[i].run)
	}

	logging.Infof("starting gristips server (%s) - http:%s metrics:%s",
		internal.FullVersion(), s.Addrs.HTTP, s.Addrs.Metrics)

	<-ctx.Done()
	for i := range s.routines {
		s.routines[i].stop()
	}

	err := group.Wait()

	if s.options.SentryDSN != "" {
		sentry.Flush(2 * time.Second)
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logging.L.Warn().Err(err).Msg("failed to close redis connection")
		}
	}

	if sqlDB, dbErr := s.db.DB(); dbErr == nil {
		if err := sqlDB.Close(); err != nil {
			logging.L.Warn().Err(err).Msg("failed to close database connection")
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// setGinMode reads GIN_MODE, defaulting to release mode when it is unset.
func setGinMode() {
	mode := os.Getenv(gin.EnvGinMode)
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
}

func (s *Server) listen() error {
	setGinMode()
	router := s.GenerateRoutes()

	metricsServer := &http.Server{
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Addr:              s.options.Addr.Metrics,
		Handler:           metrics.NewHandler(s.metricsRegistry),
	}

	var err error
	s.Addrs.Metrics, err = s.setupServer(metricsServer)
	if err != nil {
		return err
	}

	plaintextServer := &http.Server{
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		Addr:              s.options.Addr.HTTP,
		Handler:           router,
	}
	s.Addrs.HTTP, err = s.setupServer(plaintextServer)
	if err != nil {
		return err
	}

	return nil
}

func (s *Server) setupServer(server *http.Server) (net.Addr, error) {
	if server.Addr == "" {
		server.Addr = "127.0.0.1:"
	}
	l, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	logging.Infof("listening on %s", l.Addr().String())

	s.routines = append(s.routines, routine{
		run: func() error {
			err := server.Serve(l)
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		stop: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				_ = server.Close()
			}
		},
	})
	return l.Addr(), nil
}

type routine struct {
	run  func() error
	stop func()
}
