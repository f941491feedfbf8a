package directory

import "context"

// Source lists submission forms from the remote system.
// limit caps how many forms one call may return.
type Source interface {
	ListForms(ctx context.Context, limit int) ([]Form, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context, limit int) ([]Form, error)

func (f SourceFunc) ListForms(ctx context.Context, limit int) ([]Form, error) {
	return f(ctx, limit)
}
