package httpapi

import (
	"context"
)

// joinContexts returns a child of req that is also canceled when base is
// done, so shutdown aborts in-flight forwards. Request-scoped values (the
// request id) survive because req is the parent.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	if base == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
