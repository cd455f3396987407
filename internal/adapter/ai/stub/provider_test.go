package stub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Chat(t *testing.T) {
	out, err := New().Generate(context.Background(), "m", "system...\n\nUser Question: why crash?\n\nProvide a helpful, data-driven response:")
	require.NoError(t, err)
	assert.Contains(t, out, `"why crash?"`)
	assert.Contains(t, out, "(m)")
}

func TestGenerate_Analysis(t *testing.T) {
	out, err := New().Generate(context.Background(), "m", "return STRICT JSON with this exact structure")
	require.NoError(t, err)
	assert.Contains(t, out, "```json")
	assert.Contains(t, out, `"Crash on launch"`)
}

func TestGenerate_LatencyHonoursContext(t *testing.T) {
	p := &Provider{Latency: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Generate(ctx, "m", "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
