package endpoints

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spatelier/internal/config"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
)

// Auth0Middleware validates Auth0 JWT bearer tokens against cfg, guarding
// the status API's mutating endpoints (manual retry) per SPEC_FULL.md's
// DOMAIN STACK. Grounded on the teacher's internal/endpoints/auth0.go,
// generalized to build the validator straight from config.Auth0Config
// instead of the teacher's Management-API-backed auth.GetAuth0Config:
// this is a single-operator system, so there is no per-user token
// exchange to perform here, only "is this caller allowed to mutate the
// queue at all".
func Auth0Middleware(cfg config.Auth0Config) gin.HandlerFunc {
	issuerURL, err := url.Parse(fmt.Sprintf("https://%s/", cfg.Domain))
	if err != nil {
		panic(fmt.Sprintf("invalid Auth0 domain %q: %v", cfg.Domain, err))
	}
	provider := jwks.NewCachingProvider(issuerURL, 24*time.Hour)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Audience},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build JWT validator: %v", err))
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		token, err := jwtValidator.ValidateToken(context.Background(), tokenString)
		if err != nil {
			slog.Warn("token validation failed", "error", err, "path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("invalid token: %v", err)})
			c.Abort()
			return
		}

		claims, ok := token.(*validator.ValidatedClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
