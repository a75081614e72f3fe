package services

import "time"

// Option customises service construction.
type Option func(*serviceOptions)

type serviceOptions struct {
	now func() time.Time
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) serviceOptions {
	cfg := serviceOptions{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
