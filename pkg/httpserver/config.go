package httpserver

import "time"

// Config is read with the HTTP_ prefix, e.g. HTTP_ADDR.
type Config struct {
	Addr              string        `env:"ADDR" envDefault:":8080"`             // Addr is the address the server listens on.
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`       // ReadTimeout is the maximum duration for reading the entire request.
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"` // ReadHeaderTimeout bounds reading the request headers.
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`      // WriteTimeout is the maximum duration before timing out writes of the response.
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`      // IdleTimeout is how long keep-alive connections wait for the next request.
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`   // ShutdownTimeout is the time allowed for graceful shutdown.
	ProbeTimeout      time.Duration `env:"PROBE_TIMEOUT" envDefault:"2s"`       // ProbeTimeout bounds each readiness check.
}

// NewFromConfig creates a Server from cfg. Only non-zero values are applied,
// and opts are applied after them.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	configOpts := make([]Option, 0, 6+len(opts))

	if cfg.Addr != "" {
		configOpts = append(configOpts, WithAddr(cfg.Addr))
	}
	if cfg.ReadTimeout > 0 {
		configOpts = append(configOpts, WithReadTimeout(cfg.ReadTimeout))
	}
	if cfg.ReadHeaderTimeout > 0 {
		configOpts = append(configOpts, WithReadHeaderTimeout(cfg.ReadHeaderTimeout))
	}
	if cfg.WriteTimeout > 0 {
		configOpts = append(configOpts, WithWriteTimeout(cfg.WriteTimeout))
	}
	if cfg.IdleTimeout > 0 {
		configOpts = append(configOpts, WithIdleTimeout(cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout > 0 {
		configOpts = append(configOpts, WithShutdownTimeout(cfg.ShutdownTimeout))
	}

	return New(append(configOpts, opts...)...)
}
