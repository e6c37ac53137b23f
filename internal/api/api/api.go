package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"gathered/cmd/middleware"
	"gathered/internal/service"
)

type Routers struct {
	Service   service.Service
	JWTSecret string
	GinMode   string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.GinMode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	app.GET("/healthz", func(c *ginext.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiGroup := app.Group("/v1")
	apiGroup.Use(middleware.AuthMiddleware(r.JWTSecret))

	apiGroup.GET("/events", r.Service.ListEvents)
	apiGroup.GET("/events/:id", r.Service.GetEvent)

	student := apiGroup.Group("")
	student.Use(middleware.RequireRole(middleware.RoleStudent))
	student.POST("/events/:id/register", r.Service.Register)
	student.POST("/events/:id/feedback", r.Service.SubmitFeedback)
	student.POST("/registrations/:id/cancel", r.Service.Cancel)
	student.GET("/me/registrations", r.Service.MyRegistrations)
	student.GET("/me/dashboard", r.Service.Dashboard)

	admin := apiGroup.Group("/admin")
	admin.Use(middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/events", r.Service.CreateEvent)
	admin.GET("/events", r.Service.ListAdminEvents)
	admin.PUT("/events/:id", r.Service.UpdateEvent)
	admin.PUT("/events/:id/override", r.Service.SetOverride)
	admin.DELETE("/events/:id", r.Service.DeleteEvent)
	admin.GET("/events/:id/attendance", r.Service.GetRoster)
	admin.GET("/events/:id/feedback", r.Service.ListFeedback)
	admin.POST("/registrations/:id/attendance", r.Service.MarkAttendance)

	return app
}
