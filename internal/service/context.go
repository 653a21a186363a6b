package service

import "context"

type cartServiceKey struct{}

// WithCartService returns a copy of ctx that provides svc to FromContext.
func WithCartService(ctx context.Context, svc CartService) context.Context {
	return context.WithValue(ctx, cartServiceKey{}, svc)
}

// FromContext returns the CartService provided by WithCartService.
// It panics when ctx carries no cart service: using the cart outside its provider is a programming error.
func FromContext(ctx context.Context) CartService {
	svc, ok := ctx.Value(cartServiceKey{}).(CartService)
	if !ok || svc == nil {
		panic("cart: FromContext must be used within a cart provider")
	}
	return svc
}
