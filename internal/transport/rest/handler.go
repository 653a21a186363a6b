// Package rest provides HTTP handlers for cart operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/abgdnv/gomarketplace/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// CartResponse is the body returned by every cart endpoint.
type CartResponse struct {
	Products []service.CartItemDto `json:"products"`
}

type Handler struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new instance of the cart Handler.
// The cart itself is resolved per request from the context, see CartProvider.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the cart, scoped by the cart provider.
func (h *Handler) RegisterRoutes(r chi.Router, cart service.CartService) {
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(CartProvider(cart))
		r.Get("/", h.Products)
		r.Post("/items", h.AddToCart)
		r.Post("/items/{id}/increment", h.Increment)
		r.Post("/items/{id}/decrement", h.Decrement)
	})

	r.Get("/healthz", h.HealthCheck)
}

// Products returns the current cart.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	products := service.FromContext(r.Context()).Products()
	mLogger.DebugContext(r.Context(), "Successfully retrieved cart", "count", len(products))
	web.RespondJSON(w, mLogger, http.StatusOK, CartResponse{Products: products})
}

// AddToCart handles adding a product to the cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var item service.CartItemCreateDto
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to add item to cart", "item", item)
	if err := h.validate.Struct(item); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}

	products, err := service.FromContext(r.Context()).AddToCart(r.Context(), item)
	if err != nil {
		h.respondServiceError(w, r, mLogger, item.ID, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Item added to cart", "ID", item.ID)
	web.RespondJSON(w, mLogger, http.StatusOK, CartResponse{Products: products})
}

// Increment raises the quantity of a cart item by one.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.PathParam(w, r, mLogger, "id")
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to increment cart item", "ID", id)

	products, err := service.FromContext(r.Context()).Increment(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, id, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart item incremented", "ID", id)
	web.RespondJSON(w, mLogger, http.StatusOK, CartResponse{Products: products})
}

// Decrement lowers the quantity of a cart item by one, removing it at zero.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.PathParam(w, r, mLogger, "id")
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to decrement cart item", "ID", id)

	products, err := service.FromContext(r.Context()).Decrement(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, id, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart item decremented", "ID", id)
	web.RespondJSON(w, mLogger, http.StatusOK, CartResponse{Products: products})
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondServiceError maps service errors to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, id string, err error) {
	switch {
	case errors.Is(err, carterrors.ErrItemNotFound):
		mLogger.WarnContext(r.Context(), "Cart item not found", "ID", id)
		web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Cart item with ID %s not found", id))
	case errors.Is(err, carterrors.ErrServiceClosed):
		mLogger.WarnContext(r.Context(), "Cart is shutting down", "ID", id)
		web.RespondError(w, mLogger, http.StatusServiceUnavailable, "Cart is not available")
	default:
		mLogger.ErrorContext(r.Context(), "Error updating cart", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to update cart")
	}
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID, _ := web.GetRequestID(r.Context())
	return h.logger.With("request_id", reqID)
}
