package rest

import (
	"net/http"

	"github.com/abgdnv/gomarketplace/internal/service"
)

// CartProvider makes cart available to every handler below it through service.FromContext.
func CartProvider(cart service.CartService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := service.WithCartService(r.Context(), cart)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
