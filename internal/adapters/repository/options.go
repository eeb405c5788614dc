package repository

import "github.com/okian/physiopulse/pkg/logger"

const defaultKeyPrefix = "physiopulse"

type options struct {
	logger    logger.Logger
	keyPrefix string
}

func newOptions(opts []Option) options {
	o := options{logger: logger.Nop(), keyPrefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithKeyPrefix namespaces Redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}
