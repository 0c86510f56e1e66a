package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"quickcart/internal/domain"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type checkoutMetadata struct {
	OrderNumber   string          `json:"orderNumber"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	ClerkUserID   string          `json:"clerkUserId"`
	Address       *domain.Address `json:"address"`
	PaymentMethod string          `json:"paymentMethod"`
}

type checkoutRequest struct {
	Items    []domain.LineItem `json:"items"`
	Metadata checkoutMetadata  `json:"metadata"`
}

type checkoutResponse struct {
	RedirectURL string        `json:"redirectUrl"`
	Order       *domain.Order `json:"order,omitempty"`
}

// checkout starts a checkout for any payment method. Card answers with the
// hosted page only; the other methods have already written the order.
func (h *handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	method, err := domain.ParsePaymentMethod(req.Metadata.PaymentMethod)
	if err != nil {
		respondError(c, err, "Failed to start checkout")
		return
	}

	out, err := h.Checkout.BeginCheckout(c.Request.Context(), req.Items, domain.Metadata{
		OrderNumber:   req.Metadata.OrderNumber,
		CustomerName:  req.Metadata.CustomerName,
		CustomerEmail: req.Metadata.CustomerEmail,
		ClerkUserID:   req.Metadata.ClerkUserID,
		Address:       req.Metadata.Address,
		PaymentMethod: method,
	})
	if err != nil {
		respondError(c, err, "Failed to start checkout")
		return
	}

	status := http.StatusOK
	if out.Committed() {
		status = http.StatusCreated
	}
	c.JSON(status, checkoutResponse{RedirectURL: out.RedirectURL, Order: out.Order})
}

// webhook needs the body exactly as sent for signature verification.
func (h *handler) webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Unreadable body"})
		return
	}
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing Stripe signature"})
		return
	}

	if err := h.Webhooks.HandleEvent(c.Request.Context(), payload, signature); err != nil {
		respondError(c, err, "Failed to create order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type codRequest struct {
	OrderNumber   string            `json:"orderNumber"`
	CustomerName  string            `json:"customerName"`
	CustomerEmail string            `json:"customerEmail"`
	ClerkUserID   string            `json:"clerkUserId"`
	Address       *domain.Address   `json:"address"`
	Products      []domain.LineItem `json:"products"`
}

func (h *handler) cod(c *gin.Context) {
	var req codRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing required fields in request body"})
		return
	}
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.CustomerEmail) == "" ||
		req.Address == nil || len(req.Products) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Missing required fields in request body"})
		return
	}
	if err := req.Address.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Incomplete address information"})
		return
	}

	out, err := h.Checkout.BeginCheckout(c.Request.Context(), req.Products, domain.Metadata{
		OrderNumber:   req.OrderNumber,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		ClerkUserID:   req.ClerkUserID,
		Address:       req.Address,
		PaymentMethod: domain.PaymentCOD,
	})
	if err != nil {
		respondError(c, err, "Failed to create COD order")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "order": out.Order})
}

func (h *handler) listOrders(c *gin.Context) {
	orders, err := h.Orders.ListOrders(c.Request.Context(), c.Query("userId"))
	if err != nil {
		respondError(c, err, "Failed to load orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *handler) searchProducts(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "q is required"})
		return
	}
	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSearchLimit)
	}

	products, err := h.Products.Search(c.Request.Context(), q, limit)
	if err != nil {
		respondError(c, err, "Failed to search products")
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type assistantRequest struct {
	Messages       []domain.ChatMessage `json:"messages"`
	ConversationID string               `json:"conversationId"`
}

func (h *handler) assistant(c *gin.Context) {
	if h.Assistant == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "Assistant is not configured"})
		return
	}
	var req assistantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No messages provided"})
		return
	}

	reply, err := h.Assistant.Respond(c.Request.Context(), req.ConversationID, req.Messages)
	if err != nil {
		respondError(c, err, "Something went wrong.")
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handler) health(c *gin.Context) {
	stats := h.Store.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}
