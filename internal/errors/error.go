// Package errors provides custom error types for cart-related operations.
package errors

import "errors"

// ErrItemNotFound is returned when no cart item has the requested ID.
var ErrItemNotFound = errors.New("cart item not found")

// ErrServiceClosed is returned by mutations after the cart has been closed.
var ErrServiceClosed = errors.New("cart service is closed")
