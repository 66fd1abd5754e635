package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/resguarit/pos-system-sub005/internal/observability"
	"github.com/resguarit/pos-system-sub005/internal/platform/httpx"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Headers carrying the terminal credentials and request scope.
const (
	HeaderTerminalKey = "X-Terminal-Key"
	HeaderActorID     = "X-Actor-ID"
	HeaderBranchID    = "X-Branch-ID"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the global middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// APIMiddleware guards the settlement API: rate limiting per client address,
// terminal authentication and request scope extraction.
func APIMiddleware(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	limit := 120
	hash := ""
	if cfg.Config != nil {
		if cfg.Config.RateLimitPerMinute > 0 {
			limit = cfg.Config.RateLimitPerMinute
		}
		hash = cfg.Config.TerminalKeyHash
	}
	return []func(http.Handler) http.Handler{
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		TerminalAuth(hash, cfg.Logger),
		RequestScope,
	}
}

// TerminalAuth rejects requests whose X-Terminal-Key does not match the
// configured bcrypt hash.
func TerminalAuth(hash string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderTerminalKey)
			if key == "" || hash == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
				logger.Warn("terminal authentication failed",
					slog.String("remote", r.RemoteAddr),
					slog.String("request_id", middleware.GetReqID(r.Context())))
				httpx.RespondError(w, shared.ErrInvalidCredentials)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestScope converts the actor and branch headers into a
// shared.RequestScope on the request context. Requests without both headers
// carry no scope; malformed values are rejected.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorRaw, branchRaw := r.Header.Get(HeaderActorID), r.Header.Get(HeaderBranchID)
		if actorRaw == "" && branchRaw == "" {
			next.ServeHTTP(w, r)
			return
		}
		actorID, err := strconv.ParseInt(actorRaw, 10, 64)
		if err != nil || actorID <= 0 {
			httpx.RespondError(w, shared.Validation("invalid_scope", "%s must be a positive integer", HeaderActorID))
			return
		}
		branchID, err := strconv.ParseInt(branchRaw, 10, 64)
		if err != nil || branchID <= 0 {
			httpx.RespondError(w, shared.Validation("invalid_scope", "%s must be a positive integer", HeaderBranchID))
			return
		}
		scope := shared.RequestScope{ActorID: actorID, BranchID: branchID}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithScope(r.Context(), scope)))
	})
}
