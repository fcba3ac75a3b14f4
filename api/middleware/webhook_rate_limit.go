package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/qrmint/qrmint-backend/api/responses"
	"github.com/qrmint/qrmint-backend/pkg/config"
	pkgerrors "github.com/qrmint/qrmint-backend/pkg/errors"
	"github.com/qrmint/qrmint-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// WebhookRateLimit applies a fixed-window per-IP counter to the webhook
// surface. Gateways retry aggressively, so limits stay generous; the
// counter exists to blunt abuse of the unauthenticated endpoints.
func WebhookRateLimit(cfg config.WebhookRateLimitConfig, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.Window <= 0 || cfg.IPLimit <= 0 || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := store.RateLimitKey("webhook:ip:" + ip)
			count, err := store.IncrWithTTL(ctx, key, cfg.Window)
			if err != nil {
				// a counting outage must not drop gateway deliveries
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(cfg.IPLimit) {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"ip":       ip,
						"attempts": count,
						"limit":    cfg.IPLimit,
					})
					logg.Warn(logCtx, "webhook.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
