package exchange

type Option func(*Options)

type Options struct {
	// Limit bounds the number of levels or records returned.
	Limit int
}

func WithLimit(limit int) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
