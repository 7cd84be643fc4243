package eventsvc

import (
	"context"
	"sync"

	"github.com/fyplink/backend/core"
)

// DummyPublisher records events in memory; used in dev without a broker and
// in tests.
type DummyPublisher struct {
	mu     sync.Mutex
	Events []core.Event
}

var _ core.EventPublisher = (*DummyPublisher)(nil)

func NewDummyPublisher() *DummyPublisher { return &DummyPublisher{} }

func (p *DummyPublisher) Publish(_ context.Context, evt core.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, evt)
	return nil
}

func (p *DummyPublisher) Close() error { return nil }
