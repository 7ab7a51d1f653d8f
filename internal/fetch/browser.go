package fetch

import "context"

// Browser is the headless-browser tier. Rendering is not supported; the
// tier keeps its place in the chain and always fails.
type Browser struct{}

func (Browser) Name() string { return "browser" }

func (b Browser) Fetch(ctx context.Context, url string) Result {
	return failure(b.Name(), ErrNotImplemented)
}
