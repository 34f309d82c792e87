package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("diagnostics",
	fx.Provide(func() *prometheus.Registry { return prometheus.NewRegistry() }),
	fx.Provide(func(reg *prometheus.Registry) *Sink { return NewSink(reg) }),
)
