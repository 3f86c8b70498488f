package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/identity"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/realtime"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/service"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

const actorKey = "actor"

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	resolver     identity.Resolver
	hub          *realtime.Hub
	checks       map[string]Pinger
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(orderService *service.OrderService, resolver identity.Resolver, hub *realtime.Hub, checks map[string]Pinger) *Handler {
	if resolver == nil {
		resolver = identity.NewHeaderResolver()
	}
	return &Handler{
		orderService: orderService,
		resolver:     resolver,
		hub:          hub,
		checks:       checks,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", h.actorMiddleware(), h.serveWS)

	v1 := router.Group("/api/v1", h.actorMiddleware())
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/status", h.transitionOrders)
		v1.GET("/tabs/:tabId", h.getTab)
		v1.GET("/track/:token", h.track)
		v1.POST("/businesses/:id/catalog/invalidate", h.invalidateCatalog)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// actorMiddleware resolves the caller. Requests without identity headers
// continue anonymously; tracking tokens and guest checkout need no identity.
func (h *Handler) actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader(identity.HeaderActorID)) == "" {
			c.Set(actorKey, models.Actor{})
			c.Next()
			return
		}

		actor, err := h.resolver.Resolve(c.Request)
		if err != nil {
			h.writeError(c, err)
			c.Abort()
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(models.Actor); ok {
			return a
		}
	}
	return models.Actor{}
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, errs.Validation(errs.CodeInvalidInput, "invalid request body: %v", err))
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	req.Actor = actorFrom(c)

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if resp.Duplicate {
		c.JSON(http.StatusOK, resp)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// getOrder returns the summary or full view of one order
func (h *Handler) getOrder(c *gin.Context) {
	view, err := h.orderService.GetOrderStatus(c.Request.Context(), service.StatusQuery{
		OrderID:       c.Param("id"),
		BusinessID:    c.Query("business_id"),
		TrackingToken: c.Query("token"),
		View:          c.Query("view"),
	}, actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// getTab returns every order of a tab with aggregated totals
func (h *Handler) getTab(c *gin.Context) {
	view, err := h.orderService.GetOrderStatus(c.Request.Context(), service.StatusQuery{
		TabID:         c.Param("tabId"),
		BusinessID:    c.Query("business_id"),
		TrackingToken: c.Query("token"),
		View:          service.ViewFull,
	}, actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// track returns the live tracking snapshot for a tracking token
func (h *Handler) track(c *gin.Context) {
	snap, err := h.orderService.Track(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type transitionBody struct {
	OrderIDs []string      `json:"order_ids"`
	Status   models.Status `json:"status"`
	RiderID  string        `json:"rider_id"`
	Note     string        `json:"note"`
	Reason   string        `json:"reason"`
}

// transitionOrders moves a batch of orders to one status
func (h *Handler) transitionOrders(c *gin.Context) {
	actor := actorFrom(c)
	if actor.ActorID == "" {
		h.writeError(c, errs.New(errs.ErrUnauthorized, errs.CodeUnauthorized, "caller identity is required"))
		return
	}

	var body transitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, errs.Validation(errs.CodeInvalidInput, "invalid request body: %v", err))
		return
	}

	result, err := h.orderService.TransitionOrderStatus(c.Request.Context(), &service.TransitionRequest{
		OrderIDs: body.OrderIDs,
		Status:   body.Status,
		RiderID:  body.RiderID,
		Note:     body.Note,
		Reason:   body.Reason,
		Actor:    actor,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// invalidateCatalog drops cached catalog snapshots after a menu change
func (h *Handler) invalidateCatalog(c *gin.Context) {
	businessID := c.Param("id")
	actor := actorFrom(c)

	switch {
	case actor.ActorID == "":
		h.writeError(c, errs.New(errs.ErrUnauthorized, errs.CodeUnauthorized, "caller identity is required"))
		return
	case actor.Role == models.RoleAdmin:
	case !actor.IsStaff():
		h.writeError(c, errs.Forbidden(errs.CodeMissingCapability, "only business staff may invalidate the catalog"))
		return
	case actor.BusinessID != businessID:
		h.writeError(c, errs.Forbidden(errs.CodeWrongBusiness, "caller belongs to another business"))
		return
	}

	if err := h.orderService.InvalidateCatalog(c.Request.Context(), businessID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps the error kind to a status and reports the stable code
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	code := errs.CodeOf(err)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err))
	}

	message := err.Error()
	var e *errs.Error
	if errors.As(err, &e) && e.Message != "" {
		message = e.Message
	}
	if errors.Is(err, errs.ErrInternal) {
		message = "internal error"
	}

	if code == errs.CodeAlreadyProcessing {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrPriceMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
