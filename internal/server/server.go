package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"quickcart/internal/assistant"
	"quickcart/internal/database"
	"quickcart/internal/domain"
	"quickcart/internal/service"
)

// ProductSearcher is the catalog read used by the search endpoint.
type ProductSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Product, error)
}

// Dependencies are the services behind the HTTP surface. Assistant may be
// nil, which leaves its endpoint answering 503.
type Dependencies struct {
	Checkout  service.CheckoutService
	Orders    service.OrderService
	Webhooks  service.WebhookService
	Products  ProductSearcher
	Assistant assistant.Assistant
	Store     database.Service
}

type handler struct {
	Dependencies
}

func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Stripe-Signature"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	h := &handler{Dependencies: deps}

	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		api.POST("/checkout", h.checkout)
		api.POST("/webhook", h.webhook)
		api.POST("/cod", h.cod)
		api.GET("/orders", h.listOrders)
		api.GET("/products/search", h.searchProducts)
		api.POST("/assistant", h.assistant)
	}
	return r
}

// NewHTTPServer wraps the router with transport timeouts.
func NewHTTPServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps a service error onto a status and a message that is
// safe to show. fallback is used for anything unexpected.
func respondError(c *gin.Context, err error, fallback string) {
	status, msg := http.StatusInternalServerError, fallback

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		status, msg = http.StatusBadRequest, verr.Message
	case errors.Is(err, domain.ErrInvalidSignature):
		status, msg = http.StatusBadRequest, "Invalid Stripe signature"
	case errors.Is(err, domain.ErrInvalidPaymentMethod):
		status, msg = http.StatusBadRequest, "Invalid payment method"
	case errors.Is(err, domain.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, domain.ErrUpstreamProcessor):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"error", err)
	}
	c.JSON(status, errorResponse{Error: msg})
}
