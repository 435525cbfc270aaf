package node

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Node is a long-running HTTP process owned by one cmd.
type Node interface {
	NodeID() string
	Kind() string
	HTTPRouter() *gin.Engine
	// Serve blocks until ctx is done or the listener fails.
	Serve(ctx context.Context) error
}
