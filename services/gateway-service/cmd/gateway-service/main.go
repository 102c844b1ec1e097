package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/glamhq/glam/libs/auth"
	"github.com/glamhq/glam/libs/config"
	"github.com/glamhq/glam/libs/grpcx"
	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/libs/metrics"
	otelx "github.com/glamhq/glam/libs/otel"
	"github.com/glamhq/glam/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Bootstrap(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var jwks *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwks = auth.NewJWKSClient(jwksURL, config.Seconds("JWKS_CACHE_SECONDS", 300), nil)
	}
	verifier := auth.NewVerifier(config.String("JWT_SECRET", "dev-secret"), jwks)

	var checks []runtime.ReadyCheck
	for _, upstream := range []struct{ name, env string }{
		{"booking", "BOOKING_GRPC_ADDR"},
		{"payment", "PAYMENT_GRPC_ADDR"},
	} {
		addr := config.String(upstream.env, "")
		if addr == "" {
			continue
		}
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
		if err != nil {
			logger.Error("grpc dial failed", "err", err, "upstream", upstream.name)
			panic(err)
		}
		defer conn.Close()
		checks = append(checks, runtime.ReadyCheck{Name: upstream.name, Check: grpcx.HealthReadyCheck(conn, "")})
	}

	reg := metrics.NewRegistry()
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", metrics.Handler(reg))
	registerRoutes(mux, upstreams{
		booking: mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		payment: mustParseURL(config.String("PAYMENT_URL", "http://payment-service:8085")),
	}, verifier, otelhttp.NewTransport(http.DefaultTransport))

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "glam:rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			ExposedHeaders:   config.List("CORS_EXPOSED_HEADERS", "X-Request-Id,Idempotent-Replayed"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 600),
		}),
		withoutClientIdentity,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		metrics.NewHTTP(reg, service).Middleware(),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		// The payment await long poll outlives the default budget.
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 10), "/await"),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}

type upstreams struct {
	booking *url.URL
	payment *url.URL
}

func registerRoutes(mux *http.ServeMux, up upstreams, verifier *auth.Verifier, transport http.RoundTripper) {
	booking := newProxy(up.booking, transport)
	payment := newProxy(up.payment, transport)

	// Catalogue reads are open; a bearer token, when present, still has to verify.
	for _, pattern := range []string{
		"GET /api/v1/artists/availability/today",
		"GET /api/v1/artists/{id}/availability/today",
		"GET /api/v1/artists/{id}/slots",
		"GET /api/v1/artists/{id}/bookable",
		"GET /api/v1/artists/{id}/working-hours",
		"GET /api/v1/artists/{id}/blocked-dates",
	} {
		mux.Handle(pattern, optionalAuth(booking, verifier))
	}
	mux.Handle("/api/v1/artists/", requireAuth(booking, verifier))
	mux.Handle("/api/v1/bookings", requireAuth(booking, verifier))
	mux.Handle("/api/v1/bookings/", requireAuth(booking, verifier))

	// The gateway posts the callback without a JWT; the checksum is the auth.
	mux.Handle("POST /api/v1/payments/sadad/callback", optionalAuth(payment, nil))
	mux.Handle("/api/v1/payments/", requireAuth(payment, verifier))
}

func newProxy(target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Default().Error("upstream request failed", "err", err, "upstream", target.Host, "path", r.URL.Path)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return proxy
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

// withoutClientIdentity drops identity headers a client tried to supply so that
// nothing before token verification can see them.
func withoutClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.StripIdentity(r)
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, verifier *auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		httpx.SetIdentity(r, claims.Identity())
		next.ServeHTTP(w, r)
	})
}

// optionalAuth forwards anonymous requests with identity headers stripped.
// A nil verifier ignores any Authorization header.
func optionalAuth(next http.Handler, verifier *auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.StripIdentity(r)
		if token, ok := bearerToken(r); ok && verifier != nil {
			claims, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			httpx.SetIdentity(r, claims.Identity())
		}
		next.ServeHTTP(w, r)
	})
}
