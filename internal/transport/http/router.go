package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/recurring-payments/internal/transport/http/handler"
	"github.com/ErlanBelekov/recurring-payments/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

func NewRouter(logger *slog.Logger, scheduleHandler *handler.ScheduleHandler, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics("/ping"))

	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	authMW := middleware.Auth(hmacKey)

	schedules := r.Group("/schedules", authMW)
	schedules.POST("/payments", scheduleHandler.CreatePayment)
	schedules.POST("/bills", scheduleHandler.CreateBill)
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.PATCH("/:id", scheduleHandler.Update)
	schedules.DELETE("/:id", scheduleHandler.Cancel)
	schedules.POST("/:id/pause", scheduleHandler.Pause)
	schedules.POST("/:id/resume", scheduleHandler.Resume)
	schedules.POST("/:id/remind", scheduleHandler.Remind)
	schedules.GET("/:id/executions", scheduleHandler.ListExecutions)

	return r
}
