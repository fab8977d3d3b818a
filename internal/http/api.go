package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"task-manager/internal/ratelimit"
	"task-manager/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth    service.AuthService
	tasks   service.TaskService
	limiter *ratelimit.Limiter
	origins map[string]struct{}
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewHandler(auth service.AuthService, tasks service.TaskService, limiter *ratelimit.Limiter, origins []string, log logrus.FieldLogger) *Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		auth:    auth,
		tasks:   tasks,
		limiter: limiter,
		origins: allowed,
		log:     log,
		now:     time.Now,
	}
}

// RegisterRoutes installs the middleware chain and every route. Rate limiting
// runs ahead of all handlers so a rejected client never reaches credential checks.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.corsMiddleware())
	router.Use(h.requestLogger())
	router.Use(h.rateLimit())

	api := router.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		auth := api.Group("/auth")
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/refresh", h.refresh)
		auth.GET("/me", h.requireUser(), h.me)

		tasks := api.Group("/tasks", h.requireUser())
		tasks.GET("", h.listTasks)
		tasks.POST("", h.createTask)
		tasks.GET("/:id", h.getTask)
		tasks.PUT("/:id", h.updateTask)
		tasks.DELETE("/:id", h.deleteTask)
	}
}
