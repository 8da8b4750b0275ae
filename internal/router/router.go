package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skatespot-io/skatespot/internal/config"
	"github.com/skatespot-io/skatespot/internal/middleware"
	"github.com/skatespot-io/skatespot/internal/modules/handler"
	"github.com/skatespot-io/skatespot/internal/modules/repo"
	"github.com/skatespot-io/skatespot/internal/modules/serializer"
	"github.com/skatespot-io/skatespot/internal/telemetry"
)

type RouterDeps struct {
	Config          *config.Config
	Log             *zap.Logger
	UserRepo        repo.UserRepo
	SessionHandler  *handler.SessionHandler
	ActivityHandler *handler.ActivityHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if d.Config.Telemetry.Enabled && d.Config.Telemetry.OtlpEndpoint != "" {
		r.Use(telemetry.GinMiddleware(d.Config.App.Name))
		r.Use(telemetry.TraceIDMiddleware())
	}

	r.Use(middleware.ZapLogger(d.Log))

	// health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "ok"}) })

	v1 := r.Group("/api/v1")
	{
		v1.Use(middleware.ActorAuth(d.Config, d.UserRepo))

		spots := v1.Group("/spots/:spot_id")
		{
			spots.GET("/sessions", d.SessionHandler.ListUpcomingSessions)
			spots.POST("/sessions", d.SessionHandler.CreateSession)
		}

		sessions := v1.Group("/sessions/:session_id")
		{
			sessions.GET("", d.SessionHandler.GetSession)
			sessions.PATCH("", d.SessionHandler.UpdateSession)
			sessions.DELETE("", d.SessionHandler.DeleteSession)

			sessions.PUT("/status", d.SessionHandler.ChangeStatus)

			sessions.PUT("/rsvp", d.SessionHandler.RSVPSession)
			sessions.DELETE("/rsvp", d.SessionHandler.WithdrawRSVP)
		}

		v1.GET("/me/activities", d.ActivityHandler.ListMyActivities)
	}
	return r
}
