package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Eagleeye1811/insightify-sub000/internal/config"
)

func TestSetupLogger_DevAndProd(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	assert.NotNil(t, lg)
	lg2 := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"})
	assert.NotNil(t, lg2)
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want slog.Level
	}{
		{"dev default", config.Config{AppEnv: "dev"}, slog.LevelDebug},
		{"prod default", config.Config{AppEnv: "prod"}, slog.LevelInfo},
		{"override warn", config.Config{AppEnv: "dev", LogLevel: "WARN"}, slog.LevelWarn},
		{"override error", config.Config{AppEnv: "prod", LogLevel: "error"}, slog.LevelError},
		{"unknown falls back", config.Config{AppEnv: "prod", LogLevel: "loud"}, slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.cfg))
		})
	}
}
