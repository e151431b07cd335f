package core

import (
	"context"
)

// ShutdownFunc releases one resource during graceful shutdown. It should
// return once ctx is done and be safe to call more than once.
type ShutdownFunc func(ctx context.Context) error
