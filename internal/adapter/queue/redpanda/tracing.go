package redpanda

import (
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
)

// newKotel returns the tracer used for record spans and the client hooks that
// propagate trace context through record headers.
func newKotel() (*kotel.Tracer, []kgo.Hook) {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	k := kotel.NewKotel(kotel.WithTracer(tracer))
	return tracer, k.Hooks()
}
