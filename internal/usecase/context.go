package usecase

import (
	"context"
)

// detach keeps ctx values such as the logger and request id but drops its
// cancellation, so background work outlives the request that started it.
func detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
