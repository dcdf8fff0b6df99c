package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/market-shopper/internal/catalog"
	"github.com/noah-isme/market-shopper/internal/checkout"
	"github.com/noah-isme/market-shopper/internal/common"
	"github.com/noah-isme/market-shopper/internal/config"
	"github.com/noah-isme/market-shopper/internal/draft"
	"github.com/noah-isme/market-shopper/internal/events"
	"github.com/noah-isme/market-shopper/internal/health"
	"github.com/noah-isme/market-shopper/internal/lock"
	"github.com/noah-isme/market-shopper/internal/navigation"
	"github.com/noah-isme/market-shopper/internal/obs"
	"github.com/noah-isme/market-shopper/internal/payment"
	"github.com/noah-isme/market-shopper/internal/ratelimit"
	"github.com/noah-isme/market-shopper/internal/relay"
	"github.com/noah-isme/market-shopper/internal/resilience"
	"github.com/noah-isme/market-shopper/internal/security"
	"github.com/noah-isme/market-shopper/internal/session"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "shopper")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "market-shopper-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if metricsEnabled {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
	} else {
		logger.Warn().Msg("REDIS_URL not set; drafts and guards are process-local")
	}

	sessions, err := session.NewService(session.Config{
		Secret:   cfg.SessionSecret,
		Issuer:   cfg.SessionIssuer,
		Audience: cfg.SessionAudience,
		TTL:      cfg.SessionTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise session service")
	}
	sessionMiddleware := session.Middleware{Service: sessions}
	sessionHandler := session.Handler{Service: sessions}

	var drafts draft.Store = draft.NewMemoryStore()
	var views navigation.Store = navigation.NewMemoryStore(cfg.DraftTTL)
	var states checkout.StateStore = checkout.NewMemoryStateStore(cfg.DraftTTL)
	var locker *lock.Locker
	if redisClient != nil {
		drafts = draft.RedisStore{Client: redisClient, TTL: cfg.DraftTTL}
		views = navigation.RedisStore{Client: redisClient, TTL: cfg.DraftTTL}
		states = checkout.RedisStateStore{Client: redisClient, TTL: cfg.DraftTTL}
		locker = &lock.Locker{R: redisClient}
	}

	breaker := resilience.NewBreaker(cfg.RelayBreakerMinReq, cfg.RelayBreakerFailRatio, cfg.RelayBreakerOpenFor).
		WithTarget("quote_relay").
		WithLogger(logger)
	relayClient := &relay.Client{
		Endpoint: cfg.QuoteRelayURL,
		HTTP: &resilience.HTTPClient{
			Client:  relay.NewHTTPClient(cfg.RelayTimeout),
			Breaker: breaker,
			Target:  "quote_relay",
		},
		UserAgent: "market-shopper/1.0",
	}

	paystack := payment.Paystack{
		PublicKey: cfg.PaystackPublicKey,
		SecretKey: cfg.PaystackSecretKey,
		Currency:  cfg.PaymentCurrency,
		Enabled:   cfg.PaymentEnabled,
	}

	bus := &events.Bus{
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}
	if redisClient != nil {
		bus.Store = events.RedisStream{Client: redisClient, Key: cfg.EventStreamKey, MaxLen: 10000}
	}

	checkoutSvc, err := checkout.NewService(checkout.Config{
		Drafts:   drafts,
		Schedule: cfg.PricingSchedule(),
		Relay:    relayClient,
		Payments: paystack,
		Views:    navigation.NewNavigator(views),
		States:   states,
		Events:   bus,
		Locker:   locker,
		LockTTL:  cfg.SubmitLockTTL,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout service")
	}
	checkoutHandler := &checkout.Handler{
		Svc:      checkoutSvc,
		Payments: paystack,
		Replay:   payment.ReplayGuard{Client: redisClient, TTL: cfg.WebhookReplayTTL},
		Events:   bus,
		Logger:   logger,
	}
	catalogHandler := catalog.NewHandler(catalog.NewService(nil))

	sessionLimiter, err := ratelimit.NewFixedWindow(cfg.RateLimitSessions, redisClient, "rl:sessions")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise session rate limit")
	}
	var submitLimiter ratelimit.Limiter
	if redisClient != nil {
		submitLimiter = ratelimit.SlidingWindow{
			Client: redisClient,
			Prefix: "rl:submit",
			Window: cfg.RateLimitSubmitWindow,
			Max:    cfg.RateLimitSubmitMax,
		}
	} else {
		submitLimiter, err = ratelimit.NewFixedWindow(formatRate(cfg.RateLimitSubmitMax, cfg.RateLimitSubmitWindow), nil, "rl:submit")
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise submit rate limit")
		}
	}
	onLimitError := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") }
	sessionRL := ratelimit.Handler{Limiter: sessionLimiter, Key: ratelimit.BySessionOrIP("sessions"), OnError: onLimitError}
	submitRL := ratelimit.Handler{Limiter: submitLimiter, Key: ratelimit.BySessionOrIP("submit"), OnError: onLimitError}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		Enable:     true,
		EnableHSTS: cfg.AppEnv == "production",
		HSTSMaxAge: 31536000,
		NoStore:    true,
	}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{}
	if redisClient != nil {
		healthHandler.Probes = append(healthHandler.Probes, health.Probe{
			Name:    "redis",
			Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
			Ping:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(sessionRL.Middleware).Post("/sessions", sessionHandler.Create)

		v.Route("/reference", func(ref chi.Router) {
			ref.Get("/zones", checkoutHandler.Zones)
			ref.Get("/shopping-types", checkoutHandler.ShoppingTypes)
		})
		v.Get("/prices", catalogHandler.Prices)

		v.Post("/webhooks/paystack", checkoutHandler.PaystackWebhook)

		v.Group(func(s chi.Router) {
			s.Use(sessionMiddleware.RequireSession)
			checkoutHandler.DraftRoutes(s)
			s.With(submitRL.Middleware, idem.Middleware).Post("/draft/submit", checkoutHandler.Submit)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-stop.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	grace := envDurationMillis("SHUTDOWN_GRACE_MS", 10000)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// formatRate renders max-per-window in the limiter's "<n>-<S|M|H|D>" notation, rounding the window
// to the nearest supported unit.
func formatRate(max int, window time.Duration) string {
	switch {
	case window >= 24*time.Hour:
		return fmt.Sprintf("%d-D", max)
	case window >= time.Hour:
		return fmt.Sprintf("%d-H", max)
	case window >= time.Minute:
		return fmt.Sprintf("%d-M", max)
	default:
		return fmt.Sprintf("%d-S", max)
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
