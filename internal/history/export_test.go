package history

import "context"

// WithNewPool overrides the database pool constructor.
func WithNewPool(newPool func(ctx context.Context, dsn string) (dbPool, error)) Options {
	return func(o *options) {
		o.newPool = newPool
	}
}
