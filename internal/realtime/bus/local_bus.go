package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/production-planner/internal/realtime"
)

// localBus delivers in process. It stands in for Redis when the API runs as a
// single instance.
type localBus struct {
	mu     sync.RWMutex
	subs   map[int]func(realtime.Message)
	next   int
	closed bool
}

func NewLocalBus() Bus {
	return &localBus{subs: map[int]func(realtime.Message){}}
}

func (b *localBus) Publish(ctx context.Context, msg realtime.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("local bus closed")
	}
	for _, fn := range b.subs {
		fn(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("local bus closed")
	}
	id := b.next
	b.next++
	b.subs[id] = onMsg
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]func(realtime.Message){}
	return nil
}
