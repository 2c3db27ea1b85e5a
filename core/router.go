package core

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger reports database reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the HTTP layer needs.
type Dependencies struct {
	Auth     AuthService
	Listing  *ListingService
	Accounts *AccountCreator
	Tokens   *TokenIssuer
	Limiter  *LoginLimiter // nil disables login rate limiting
	Metrics  *Metrics
	Logger   logrus.FieldLogger
	DB       Pinger
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, deps Dependencies) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		deps.Logger.WithError(err).Error("invalid trusted proxies, using the peer address")
		_ = r.SetTrustedProxies(nil)
	}

	// Global middleware: recovery -> timing -> request id -> logging -> origin/CORS
	r.Use(gin.Recovery())
	r.Use(Timing())
	r.Use(RequestID())
	r.Use(RequestLogger(deps.Logger, deps.Metrics))
	r.Use(OriginMiddleware(cfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Test health check endpoint"})
	})
	r.GET("/ready", readyHandler(deps.DB, deps.Logger))
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	r.POST("/auth/login", LoginRateLimit(deps.Limiter, deps.Logger, deps.Metrics), func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request body")
			return
		}

		res, err := deps.Auth.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.GET("/roles", func(c *gin.Context) {
		c.JSON(http.StatusOK, Roles())
	})
	r.GET("/roles/code/:code", func(c *gin.Context) {
		role, ok := RoleByCode(c.Param("code"))
		if !ok {
			respondError(c, http.StatusNotFound, "Role not found")
			return
		}
		c.JSON(http.StatusOK, role)
	})

	r.GET("/users", func(c *gin.Context) {
		role := c.Query("role")
		if role == "" {
			role = c.Query("role_code")
		}
		res := deps.Listing.ListUsers(c.Request.Context(), ListingParams{
			Search:   c.Query("search"),
			Role:     role,
			Page:     c.Query("page"),
			PageSize: c.Query("page_size"),
		})
		c.JSON(http.StatusOK, res)
	})

	r.GET("/users/:user_id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
		if err != nil {
			respondErr(c, ErrUserNotFound)
			return
		}
		u, err := deps.Listing.GetUser(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	})

	authed := r.Group("/users", JWTAuth(deps.Tokens))
	{
		authed.GET("/me", func(c *gin.Context) {
			claims, ok := claimsFrom(c)
			if !ok {
				respondError(c, http.StatusUnauthorized, "Unauthorized")
				return
			}
			u, err := deps.Listing.GetUser(c.Request.Context(), claims.UserID)
			if err != nil {
				respondErr(c, err)
				return
			}
			c.JSON(http.StatusOK, u)
		})

		authed.POST("", RequireStaff(), func(c *gin.Context) {
			var req CreateUserRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "Invalid request body")
				return
			}
			u, err := deps.Accounts.Create(c.Request.Context(), req)
			if err != nil {
				if status, _ := statusForError(err); status == http.StatusInternalServerError {
					deps.Logger.WithError(err).WithField("username", req.Username).Error("create user failed")
				}
				respondErr(c, err)
				return
			}
			c.JSON(http.StatusCreated, u)
		})
	}

	return r
}

func readyHandler(db Pinger, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": gin.H{"database": "error"}})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.WithError(err).Warn("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": gin.H{"database": "error"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "checks": gin.H{"database": "ok"}})
	}
}
