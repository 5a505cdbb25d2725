package retrieval

const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.5
)

// Options control ranking for one retrieval call.
type Options struct {
	// TopK caps the number of ranked candidates considered before thresholding.
	TopK int
	// ScoreThreshold drops results scoring below it.
	ScoreThreshold float64
}

// Option overrides a field of Options.
type Option func(*Options)

// WithTopK sets the candidate cap. Values <= 0 are ignored.
func WithTopK(k int) Option {
	return func(o *Options) {
		if k > 0 {
			o.TopK = k
		}
	}
}

// WithScoreThreshold sets the minimum score of a returned result.
func WithScoreThreshold(threshold float64) Option {
	return func(o *Options) {
		o.ScoreThreshold = threshold
	}
}

func (o Options) apply(opts []Option) Options {
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
