package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func Test_ContextHandler(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	tests := []struct {
		name     string
		ctx      context.Context
		expected map[string]string
		absent   []string
	}{
		{
			name:   "plain context",
			ctx:    context.Background(),
			absent: []string{"trace_id", "span_id", "request_id"},
		},
		{
			name: "span and request id",
			ctx: trace.ContextWithSpanContext(
				context.WithValue(context.Background(), middleware.RequestIDKey, "req-1"), spanCtx),
			expected: map[string]string{
				"trace_id":   "0102030405060708090a0b0c0d0e0f10",
				"span_id":    "0102030405060708",
				"request_id": "req-1",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			var buf bytes.Buffer
			log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "cart")
			// when
			log.InfoContext(tt.ctx, "cart changed")
			// then
			var record map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
			assert.Equal(t, "cart", record["component"])
			for k, v := range tt.expected {
				assert.Equal(t, v, record[k], k)
			}
			for _, k := range tt.absent {
				assert.NotContains(t, record, k)
			}
		})
	}
}
