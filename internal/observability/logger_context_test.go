package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFromContext(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name string
		ctx  context.Context
		want *slog.Logger
	}{
		{"attached logger", ContextWithLogger(context.Background(), custom), custom},
		{"no logger", context.Background(), slog.Default()},
		{"nil logger is ignored", ContextWithLogger(context.Background(), nil), slog.Default()},
		{"nil context", nil, slog.Default()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.want, LoggerFromContext(tt.ctx))
		})
	}
}

func TestContextValues_EmptyValuesKeepContext(t *testing.T) {
	base := context.Background()
	assert.Equal(t, base, ContextWithRequestID(base, ""))
	assert.Equal(t, base, ContextWithUserID(base, ""))
	assert.Empty(t, RequestIDFromContext(base))
	assert.Empty(t, UserIDFromContext(base))
	assert.Empty(t, RequestIDFromContext(nil))
	assert.Empty(t, UserIDFromContext(nil))
}

// An analysis request carries its request id and uid from the HTTP handler,
// through the detached job context, into the worker's logger.
func TestContextValues_SurviveDetachedAnalysisJob(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	reqCtx, cancel := context.WithCancel(context.Background())
	reqCtx = ContextWithRequestID(reqCtx, "req-42")
	reqCtx = ContextWithUserID(reqCtx, "user-7")
	reqCtx = ContextWithLogger(reqCtx, base.With(
		slog.String("request_id", RequestIDFromContext(reqCtx)),
		slog.String("user_id", UserIDFromContext(reqCtx))))

	jobCtx := context.WithoutCancel(reqCtx)
	cancel()
	require.Error(t, reqCtx.Err())
	require.NoError(t, jobCtx.Err())

	assert.Equal(t, "req-42", RequestIDFromContext(jobCtx))
	assert.Equal(t, "user-7", UserIDFromContext(jobCtx))
	LoggerFromContext(jobCtx).Info("analysis job started")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	assert.Contains(t, buf.String(), `"user_id":"user-7"`)

	// The consumer rebuilds the same values from the job payload.
	restored := ContextWithUserID(ContextWithRequestID(context.Background(), "req-42"), "user-7")
	assert.Equal(t, RequestIDFromContext(jobCtx), RequestIDFromContext(restored))
	assert.Equal(t, UserIDFromContext(jobCtx), UserIDFromContext(restored))
}

func TestContextValues_InnerValueWins(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "outer")
	ctx = ContextWithUserID(ctx, "u1")
	inner := ContextWithRequestID(ctx, "inner")

	assert.Equal(t, "inner", RequestIDFromContext(inner))
	assert.Equal(t, "u1", UserIDFromContext(inner), "other values stay visible")
	assert.Equal(t, "outer", RequestIDFromContext(ctx))
}
