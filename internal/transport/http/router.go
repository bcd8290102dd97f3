package http

import (
	"net/http"
	"time"

	"medai-auth/internal/netutil"
	"medai-auth/internal/observability/middleware"
	"medai-auth/internal/ratelimit"
	"medai-auth/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	TrustProxy bool
	// Limiter throttles the attempt endpoints. nil disables it.
	Limiter     *ratelimit.Limiter
	CORSOrigins []string
	// GlobalRateLimitPerMinute is an in-process per-IP cap over /api/auth. 0 disables.
	GlobalRateLimitPerMinute int
	// Metrics defaults to the Prometheus default gatherer.
	Metrics http.Handler
}

// Set on every response, API clients and browsers alike.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"X-DNS-Prefetch-Control", "off"},
}

func NewRouter(auth service.AuthService, opts Options) http.Handler {
	h := &handler{auth: auth, trustProxy: opts.TrustProxy}

	r := chi.NewRouter()

	// --- Middlewares ---
	r.Use(chimw.Recoverer)
	r.Use(middleware.WithRequestAndTrace)
	r.Use(middleware.WithMetrics)
	for _, hdr := range securityHeaders {
		r.Use(chimw.SetHeader(hdr[0], hdr[1]))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrAny(opts.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.HeaderRequestID, middleware.HeaderTraceID},
		ExposedHeaders:   []string{"Retry-After", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: CodeNotFound, Message: "Route not found."})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	clientIP := func(req *http.Request) string { return netutil.ClientIP(req, opts.TrustProxy) }
	throttle := func(route string) func(http.Handler) http.Handler {
		return opts.Limiter.Middleware(route, clientIP, rejectTooManyAttempts)
	}

	r.Route("/api/auth", func(r chi.Router) {
		if opts.GlobalRateLimitPerMinute > 0 {
			r.Use(httprate.Limit(opts.GlobalRateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(func(req *http.Request) (string, error) { return clientIP(req), nil }),
				httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
					rejectTooManyAttempts(w, req, time.Minute)
				}),
			))
		}

		r.With(throttle("signup")).Post("/signup", h.signup)
		r.With(throttle("verify-email")).Post("/verify-email", h.verifyEmail)
		r.With(throttle("resend-otp")).Post("/resend-otp", h.resendOTP)
		r.With(throttle("login")).Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Get("/me", h.me)
	})

	return r
}

func originsOrAny(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}
