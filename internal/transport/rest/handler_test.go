package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/abgdnv/gomarketplace/internal/store"
	"github.com/abgdnv/gomarketplace/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCartService struct {
	mock.Mock
}

func (m *mockCartService) Products() []service.CartItemDto {
	args := m.Called()
	return args.Get(0).([]service.CartItemDto)
}

func (m *mockCartService) AddToCart(ctx context.Context, item service.CartItemCreateDto) ([]service.CartItemDto, error) {
	args := m.Called(ctx, item)
	products, _ := args.Get(0).([]service.CartItemDto)
	return products, args.Error(1)
}

func (m *mockCartService) Increment(ctx context.Context, id string) ([]service.CartItemDto, error) {
	args := m.Called(ctx, id)
	products, _ := args.Get(0).([]service.CartItemDto)
	return products, args.Error(1)
}

func (m *mockCartService) Decrement(ctx context.Context, id string) ([]service.CartItemDto, error) {
	args := m.Called(ctx, id)
	products, _ := args.Get(0).([]service.CartItemDto)
	return products, args.Error(1)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRouter(cart service.CartService) http.Handler {
	router := server.NewChiRouter(discard)
	NewHandler(discard).RegisterRoutes(router, cart)
	return router
}

var shirt = service.CartItemDto{ID: "1", Title: "Shirt", ImageURL: "u", Price: 10, Quantity: 1}

func Test_Handler_Products(t *testing.T) {
	// given
	cart := new(mockCartService)
	cart.On("Products").Return([]service.CartItemDto{shirt}).Once()
	rr := httptest.NewRecorder()
	// when
	newTestRouter(cart).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil))
	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"products":[{"id":"1","title":"Shirt","image_url":"u","price":10,"quantity":1}]}`, rr.Body.String())
	cart.AssertExpectations(t)
}

func Test_Handler_AddToCart(t *testing.T) {
	testCases := []struct {
		name         string
		body         string
		setup        func(cart *mockCartService)
		expectedCode int
		expectedBody string
	}{
		{
			name: "Success - item added",
			body: `{"id":"1","title":"Shirt","image_url":"u","price":10}`,
			setup: func(cart *mockCartService) {
				cart.On("AddToCart", mock.Anything, service.CartItemCreateDto{ID: "1", Title: "Shirt", ImageURL: "u", Price: 10}).
					Return([]service.CartItemDto{shirt}, nil).Once()
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"products":[{"id":"1","title":"Shirt","image_url":"u","price":10,"quantity":1}]}`,
		},
		{
			name:         "Error - malformed body",
			body:         `{"id":`,
			setup:        func(_ *mockCartService) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Invalid request body"}`,
		},
		{
			name:         "Error - validation failed",
			body:         `{"title":"Shirt","price":-1}`,
			setup:        func(_ *mockCartService) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"ID":"failed on rule: required","Price":"failed on rule: min"}}`,
		},
		{
			name: "Error - cart closed",
			body: `{"id":"1","title":"Shirt","price":10}`,
			setup: func(cart *mockCartService) {
				cart.On("AddToCart", mock.Anything, mock.Anything).Return(nil, carterrors.ErrServiceClosed).Once()
			},
			expectedCode: http.StatusServiceUnavailable,
			expectedBody: `{"error":"Cart is not available"}`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			cart := new(mockCartService)
			tc.setup(cart)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			// when
			newTestRouter(cart).ServeHTTP(rr, req)
			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
			cart.AssertExpectations(t)
		})
	}
}

func Test_Handler_IncrementDecrement(t *testing.T) {
	testCases := []struct {
		name         string
		op           string
		err          error
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - increment",
			op:           "Increment",
			expectedCode: http.StatusOK,
			expectedBody: `{"products":[{"id":"1","title":"Shirt","image_url":"u","price":10,"quantity":1}]}`,
		},
		{
			name:         "Success - decrement",
			op:           "Decrement",
			expectedCode: http.StatusOK,
			expectedBody: `{"products":[{"id":"1","title":"Shirt","image_url":"u","price":10,"quantity":1}]}`,
		},
		{
			name:         "Error - increment unknown item",
			op:           "Increment",
			err:          fmt.Errorf("failed to increment item 1: %w", carterrors.ErrItemNotFound),
			expectedCode: http.StatusNotFound,
			expectedBody: `{"error":"Cart item with ID 1 not found"}`,
		},
		{
			name:         "Error - decrement unknown item",
			op:           "Decrement",
			err:          fmt.Errorf("failed to decrement item 1: %w", carterrors.ErrItemNotFound),
			expectedCode: http.StatusNotFound,
			expectedBody: `{"error":"Cart item with ID 1 not found"}`,
		},
		{
			name:         "Error - unexpected failure",
			op:           "Increment",
			err:          errors.New("boom"),
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"error":"Failed to update cart"}`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			cart := new(mockCartService)
			if tc.err != nil {
				cart.On(tc.op, mock.Anything, "1").Return(nil, tc.err).Once()
			} else {
				cart.On(tc.op, mock.Anything, "1").Return([]service.CartItemDto{shirt}, nil).Once()
			}
			path := "/api/v1/cart/items/1/" + strings.ToLower(tc.op)
			rr := httptest.NewRecorder()
			// when
			newTestRouter(cart).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
			cart.AssertExpectations(t)
		})
	}
}

func Test_Handler_HealthCheck(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(new(mockCartService)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func Test_Handler_WithoutProviderPanics(t *testing.T) {
	// given a handler called without the cart provider
	h := NewHandler(discard)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
	rr := httptest.NewRecorder()
	// when / then
	assert.PanicsWithValue(t, "cart: FromContext must be used within a cart provider", func() {
		h.Products(rr, req)
	})
}

func Test_Handler_ItemIDsRoundTripThroughPath(t *testing.T) {
	testCases := []struct {
		name string
		id   string
	}{
		{name: "slash", id: "a/b"},
		{name: "leading space", id: " 1"},
		{name: "trailing space", id: "1 "},
		{name: "percent sign", id: "50%"},
		{name: "query characters", id: "x?y#z"},
		{name: "multibyte", id: "футболка"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			cart := service.NewService(store.NewInMemoryStore(), "@GoMarketplace:cart", time.Second, discard)
			t.Cleanup(func() { _ = cart.Close(context.Background()) })
			router := newTestRouter(cart)
			body := fmt.Sprintf(`{"id":%q,"title":"Shirt","price":10}`, tc.id)
			add := httptest.NewRecorder()
			router.ServeHTTP(add, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)))
			require.Equal(t, http.StatusOK, add.Code)
			itemPath := "/api/v1/cart/items/" + url.PathEscape(tc.id)

			// when
			inc := httptest.NewRecorder()
			router.ServeHTTP(inc, httptest.NewRequest(http.MethodPost, itemPath+"/increment", nil))
			dec := httptest.NewRecorder()
			router.ServeHTTP(dec, httptest.NewRequest(http.MethodPost, itemPath+"/decrement", nil))

			// then
			assert.Equal(t, http.StatusOK, inc.Code, inc.Body.String())
			assert.Equal(t, http.StatusOK, dec.Code, dec.Body.String())
			assert.Equal(t, []service.CartItemDto{{ID: tc.id, Title: "Shirt", Price: 10, Quantity: 1}}, cart.Products())
			assert.Equal(t, uint64(3), cart.Generation())
		})
	}
}

// Test_Handler_Scenario drives the real cart through the HTTP API.
func Test_Handler_Scenario(t *testing.T) {
	// given
	kv := store.NewInMemoryStore()
	cart := service.NewService(kv, "@GoMarketplace:cart", time.Second, discard)
	t.Cleanup(func() { _ = cart.Close(context.Background()) })
	router := newTestRouter(cart)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rr
	}

	// when
	require.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/cart/items", `{"id":"1","title":"Shirt","image_url":"u","price":10}`).Code)
	require.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/cart/items", `{"id":"1","title":"Other","image_url":"x","price":99}`).Code)
	require.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/cart/items", `{"id":"2","title":"Cap","image_url":"c","price":5}`).Code)
	require.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/cart/items/2/decrement", "").Code)
	unknown := do(http.MethodPost, "/api/v1/cart/items/2/decrement", "")

	// then
	assert.Equal(t, http.StatusNotFound, unknown.Code)
	rr := do(http.MethodGet, "/api/v1/cart/", "")
	assert.JSONEq(t, `{"products":[{"id":"1","title":"Shirt","image_url":"u","price":10,"quantity":2}]}`, rr.Body.String())
	require.Eventually(t, func() bool {
		value, found, err := kv.Get(context.Background(), "@GoMarketplace:cart")
		return err == nil && found && value == `[{"id":"1","title":"Shirt","image_url":"u","price":10,"quantity":2}]`
	}, time.Second, 10*time.Millisecond)
}
