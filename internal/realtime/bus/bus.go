package bus

import (
	"context"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/realtime"
)

// Bus fans realtime messages out to every API instance. Each instance runs
// one forwarder that feeds its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

// Publisher sends manifest events through a Bus.
type Publisher struct{ Bus Bus }

func (p *Publisher) Publish(ctx context.Context, ev production.ManifestEvent) error {
	return p.Bus.Publish(ctx, realtime.FromManifestEvent(ev))
}
