package core

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	claimsKey       = "claims"

	serverTimeLayout = "2006-01-02T15:04:05.000Z"
)

// RequestID propagates a caller-supplied X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger writes one structured line per request and records request metrics.
func RequestLogger(logger logrus.FieldLogger, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.ObserveRequest(c.Request.Method, route, status, elapsed)

		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"route":      route,
			"status":     status,
			"latency_ms": float64(elapsed.Microseconds()) / 1000,
			"request_id": c.GetString(requestIDKey),
			"client_ip":  c.ClientIP(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request completed with server error")
			return
		}
		entry.Debug("request completed")
	}
}

// timingWriter stamps X-Server-Time and X-Response-Time right before the header
// is flushed, so the duration covers the handler's work.
type timingWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timingWriter) stamp() {
	if w.stamped || w.ResponseWriter.Written() {
		return
	}
	w.stamped = true
	ms := float64(time.Since(w.start).Microseconds()) / 1000
	h := w.Header()
	h.Set("X-Server-Time", time.Now().UTC().Format(serverTimeLayout))
	h.Set("X-Response-Time", fmt.Sprintf("%.2fms", ms))
}

func (w *timingWriter) WriteHeaderNow() {
	w.stamp()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timingWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// Timing adds X-Server-Time (UTC) and X-Response-Time (ms) to every response.
func Timing() gin.HandlerFunc {
	return func(c *gin.Context) {
		tw := &timingWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Writer = tw
		c.Next()
		tw.WriteHeaderNow()
	}
}

// OriginMiddleware validates Origin/Referer against the allowed list and sets CORS headers.
// Requests without an origin (non-browser clients) pass through.
func OriginMiddleware(cfg Config) gin.HandlerFunc {
	allowAll := false
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" || allowAll {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if referer := c.GetHeader("Referer"); origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil && u.Host != "" {
				origin = u.Scheme + "://" + u.Host
			}
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "Origin not allowed")
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		if c.Request.Method == http.MethodOptions && origin != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Response-Time, X-Server-Time")
}

// JWTAuth requires a valid Bearer token and stores its claims on the context.
func JWTAuth(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			respondError(c, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		tokenString = strings.TrimSpace(tokenString)
		if tokenString == "" {
			respondError(c, http.StatusUnauthorized, "Missing token")
			return
		}
		claims, err := issuer.Parse(tokenString)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "Invalid token")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireStaff ensures the authenticated user is staff. Must run after JWTAuth.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok || !claims.IsStaff {
			respondError(c, http.StatusForbidden, "Staff access required")
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok && claims != nil
}

// LoginRateLimit rejects clients that exceed the login attempt budget. A nil
// limiter disables the check; limiter errors let the request through.
func LoginRateLimit(limiter *LoginLimiter, logger logrus.FieldLogger, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WithError(err).Warn("login rate limit check failed")
			c.Next()
			return
		}
		if !allowed {
			metrics.LoginRateLimited()
			secs := int(retryAfter.Round(time.Second) / time.Second)
			c.Header("Retry-After", strconv.Itoa(max(1, secs)))
			respondError(c, http.StatusTooManyRequests, "Too many login attempts")
			return
		}
		c.Next()
	}
}
