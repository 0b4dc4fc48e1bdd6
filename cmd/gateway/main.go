package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"edu-gateway/config"
	"edu-gateway/gateway"
	"edu-gateway/gateway/domain"
	"edu-gateway/middleware/circuit"
	"edu-gateway/middleware/concurrency"
	"edu-gateway/middleware/observe"
	"edu-gateway/middleware/ratelimit"
	"edu-gateway/middleware/ratelimit/application"
	rldomain "edu-gateway/middleware/ratelimit/domain"
	"edu-gateway/middleware/ratelimit/infra"
	"edu-gateway/middleware/requestid"
	"edu-gateway/middleware/transform"
	"edu-gateway/middleware/validate"
	"edu-gateway/middleware/version"
	"edu-gateway/upstream"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	env, err := readEnv()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("env error")
	}

	logger := newLogger(env.logLevel)

	cfg, err := config.Load(env.configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := observe.NewMetrics()
	observer := observe.New(logger, metrics)

	store, err := buildStore(ctx, cfg.RateLimit, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limit store error")
	}

	breakers := circuit.NewRegistry(
		breakerOptions(cfg.Circuit.Default),
		circuit.WithOverrides(breakerOverrides(cfg.Circuit.PerUpstream)),
		circuit.WithStateHook(metrics.BreakerHook()),
	)

	targets := make([]upstream.Target, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		base, err := url.Parse(u.BaseURL)
		if err != nil {
			logger.Fatal().Err(err).Str("upstream", u.ID).Msg("invalid base_url")
		}
		targets = append(targets, upstream.Target{ID: u.ID, BaseURL: base, Healthy: u.Healthy})
	}

	invoker := upstream.NewInvoker(targets, breakers, upstream.Options{
		DefaultTimeout: env.upstreamTimeout,
		StripHeaders:   []string{env.keyHeader},
	})

	gw := gateway.New(gateway.Options{
		Identify: requestid.NewStage(),
		Stages: []gateway.Stage{
			version.NewStage(version.Options{
				Versions: cfg.Versions,
				Latest:   cfg.Latest,
				Routes:   routeRules(cfg.Routes),
			}),
			ratelimit.NewStage(ratelimit.Options{
				Service: application.Service{
					Store: store,
					Rules: limitRules(cfg.RateLimit),
				},
				OnReject:   metrics.RateLimited,
				AddHeaders: env.addRateHeaders,
			}),
			validate.NewStage(),
			concurrency.NewStage(concurrency.Options{
				Max:            env.concurrencyMax,
				AcquireTimeout: env.concurrencyTimeout,
			}),
		},
		Invoker: invoker,
		Headers: transform.Policy{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
			MaxAgeSeconds:  int(cfg.CORS.MaxAge.Std().Seconds()),
			HSTS:           cfg.CORS.HSTS,
		},
		Observer: observer,
		Identity: identityFunc(env.keyHeader, cfg.APIKeys),
		TrustXFF: env.trustXFF,
	})

	srv := &http.Server{
		Addr:              env.listenAddr,
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", metrics.Handler())
	adminMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	admin := &http.Server{
		Addr:              env.adminAddr,
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", env.listenAddr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", env.adminAddr).Msg("admin listening")
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// buildStore escolhe a implementação do contador conforme a config e liga o
// janitor das variantes em memória.
func buildStore(ctx context.Context, cfg config.RateLimit, logger zerolog.Logger) (rldomain.Store, error) {
	switch cfg.Algorithm {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return nil, err
		}
		opts := []infra.RedisOption{}
		if cfg.Redis.Prefix != "" {
			opts = append(opts, infra.WithPrefix(cfg.Redis.Prefix))
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("rate limit store: redis fixed window")
		return infra.NewRedisStore(rdb, opts...), nil

	case "token_bucket":
		s := infra.NewBucketStore()
		s.StartJanitor(ctx)
		logger.Info().Msg("rate limit store: token bucket")
		return s, nil

	default:
		s := infra.NewMemoryStore()
		s.StartJanitor(ctx)
		logger.Info().Msg("rate limit store: in-memory fixed window")
		return s, nil
	}
}

func limitRules(cfg config.RateLimit) application.Rules {
	toRule := func(r config.Rule) rldomain.Rule {
		return rldomain.Rule{Limit: r.Limit, Window: r.Window.Std()}
	}
	rules := application.Rules{
		Global:      toRule(cfg.Default),
		IP:          toRule(cfg.IP),
		PerTier:     make(map[string]rldomain.Rule, len(cfg.PerTier)),
		PerConsumer: make(map[string]rldomain.Rule, len(cfg.PerConsumer)),
	}
	for tier, r := range cfg.PerTier {
		rules.PerTier[tier] = toRule(r)
	}
	for id, r := range cfg.PerConsumer {
		rules.PerConsumer[id] = toRule(r)
	}
	return rules
}

func routeRules(routes []config.Route) []domain.RouteRule {
	out := make([]domain.RouteRule, 0, len(routes))
	for _, rt := range routes {
		rule := domain.RouteRule{
			Prefix:       rt.Prefix,
			Upstream:     rt.Upstream,
			Versions:     rt.Versions,
			Timeout:      rt.Timeout.Std(),
			MaxBodyBytes: rt.MaxBodyBytes,
			ContentTypes: rt.ContentTypes,
		}
		if rt.RateLimit != nil {
			rule.RateLimit = rt.RateLimit.Limit
			rule.RateWindow = rt.RateLimit.Window.Std()
		}
		out = append(out, rule)
	}
	return out
}

func breakerOptions(b config.Breaker) circuit.Options {
	return circuit.Options{
		FailureThreshold:  b.FailureThreshold,
		FailureWindow:     b.FailureWindow.Std(),
		RecoveryTimeout:   b.RecoveryTimeout.Std(),
		HalfOpenProbes:    b.HalfOpenProbes,
		HalfOpenSuccesses: b.HalfOpenSuccesses,
	}
}

func breakerOverrides(per map[string]config.Breaker) map[string]circuit.Options {
	out := make(map[string]circuit.Options, len(per))
	for id, b := range per {
		out[id] = breakerOptions(b)
	}
	return out
}

// identityFunc resolve a API key em identidade (id + tier). A emissão e a
// verificação criptográfica de credenciais são colaborador externo; aqui só
// traduzimos uma chave já aceita para a identidade usada nas partições.
func identityFunc(header string, keys map[string]config.APIKey) gateway.IdentityFunc {
	return func(r *http.Request) domain.Consumer {
		if header == "" {
			return domain.Consumer{}
		}
		k := r.Header.Get(header)
		if k == "" {
			return domain.Consumer{}
		}
		entry, ok := keys[k]
		if !ok {
			return domain.Consumer{}
		}
		return domain.Consumer{ID: entry.ID, Tier: domain.Tier(entry.Tier)}
	}
}

type env struct {
	listenAddr         string
	adminAddr          string
	configPath         string
	logLevel           string
	keyHeader          string
	trustXFF           bool
	addRateHeaders     bool
	upstreamTimeout    time.Duration
	concurrencyMax     int
	concurrencyTimeout time.Duration
}

func readEnv() (env, error) {
	e := env{}
	e.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	e.adminAddr = getenvDefault("ADMIN_ADDR", ":9090")
	e.configPath = getenvDefault("GATEWAY_CONFIG", "gateway.yaml")
	e.logLevel = getenvDefault("LOG_LEVEL", "info")
	e.keyHeader = getenvDefault("API_KEY_HEADER", "X-Api-Key")
	e.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	e.addRateHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	e.upstreamTimeout = getenvDurationDefault("UPSTREAM_TIMEOUT", 10*time.Second)
	e.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 512)
	e.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	if e.concurrencyMax < 0 {
		return env{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if e.upstreamTimeout <= 0 {
		return env{}, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	return e, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
