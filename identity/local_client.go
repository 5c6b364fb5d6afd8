package identity

import (
	"context"
	"time"

	"github.com/oasislabs/ready-layer-two/protocol"
)

// LocalClient calls a Registry in-process on behalf of a fixed caller.
type LocalClient struct {
	registry *Registry
	caller   string
}

// NewLocalClient binds registry to the identity of the calling service.
func NewLocalClient(registry *Registry, caller string) *LocalClient {
	return &LocalClient{registry: registry, caller: caller}
}

func (c *LocalClient) VerifyToken(ctx context.Context, tokenText string) (protocol.UserInfo, error) {
	return c.registry.VerifyToken(ctx, protocol.NewRequestContext(c.caller, time.Now()), tokenText)
}
