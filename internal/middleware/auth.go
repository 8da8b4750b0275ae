package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skatespot-io/skatespot/internal/config"
	"github.com/skatespot-io/skatespot/internal/modules/repo"
	"github.com/skatespot-io/skatespot/internal/modules/serializer"
	"github.com/skatespot-io/skatespot/internal/modules/service"
	"github.com/skatespot-io/skatespot/internal/pkg/utils/tokens"
)

// ActorKey is the gin context key holding the authenticated service.Actor.
const ActorKey = "actor"

// ActorAuth authenticates requests with user bearer tokens. It resolves the
// token to a user row, optionally verifies the argon2 hash, and stores the
// resulting Actor in the context. Everything past this middleware only ever
// sees an opaque id + admin flag.
func ActorAuth(cfg *config.Config, users repo.UserRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx, authSpan := otel.Tracer("middleware").Start(ctx, "actor_auth",
			trace.WithAttributes(attribute.String("middleware", "actor_auth")))

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			authSpan.SetAttributes(attribute.Bool("authenticated", false))
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		secret, ok := tokens.ParseBearer(raw, cfg.Root.UserBearerTokenPrefix)
		if !ok {
			authSpan.SetAttributes(attribute.Bool("authenticated", false))
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
			return
		}

		lookup := tokens.HMAC256Hex(cfg.Root.SecretPepper, secret)

		user, err := users.GetByTokenHMAC(ctx, lookup)
		if err != nil {
			if errors.Is(err, repo.ErrUserNotFound) {
				authSpan.SetAttributes(attribute.Bool("authenticated", false))
				authSpan.End()
				c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
				return
			}
			authSpan.RecordError(err)
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusInternalServerError, serializer.DBErr("", err))
			return
		}

		if cfg.Root.EnableArgon2Verification {
			_, verifySpan := otel.Tracer("middleware").Start(ctx, "actor_auth.verify_secret")
			pass, err := tokens.VerifySecret(secret, cfg.Root.SecretPepper, user.TokenHashPHC)
			verifySpan.End()
			if err != nil || !pass {
				authSpan.SetAttributes(
					attribute.String("user_id", user.ID.String()),
					attribute.Bool("authenticated", false),
				)
				authSpan.End()
				c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
				return
			}
		}

		rootSpan := trace.SpanFromContext(c.Request.Context())
		if rootSpan.SpanContext().IsValid() {
			rootSpan.SetAttributes(attribute.String("user_id", user.ID.String()))
		}

		authSpan.SetAttributes(
			attribute.String("user_id", user.ID.String()),
			attribute.Bool("authenticated", true),
		)
		authSpan.End()

		c.Set(ActorKey, service.Actor{ID: user.ID, IsAdmin: user.IsAdmin})
		c.Next()
	}
}

// ActorFrom extracts the authenticated Actor placed by ActorAuth.
func ActorFrom(c *gin.Context) (service.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return service.Actor{}, false
	}
	actor, ok := v.(service.Actor)
	return actor, ok
}
