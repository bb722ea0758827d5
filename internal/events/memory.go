package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// MemoryBus entrega eventos dentro do processo. Útil em testes e no modo
// EVENT_BUS=memory; cada entrega roda em goroutine própria.
type MemoryBus struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]Handler
	closed bool
	wg     sync.WaitGroup
}

func NewMemoryBus(logger zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		logger: logger.With().Str("component", "events.memory").Logger(),
		subs:   make(map[string]map[*memorySubscription]Handler),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, name string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, h := range b.subs[name] {
		data := append([]byte(nil), payload...)
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			dispatch(context.WithoutCancel(ctx), b.logger, name, h, data)
		}(h)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, name string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{bus: b, name: name}
	if b.subs[name] == nil {
		b.subs[name] = make(map[*memorySubscription]Handler)
	}
	b.subs[name][sub] = handler
	return sub, nil
}

// Wait bloqueia até todas as entregas em andamento terminarem.
func (b *MemoryBus) Wait() {
	b.wg.Wait()
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[string]map[*memorySubscription]Handler)
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

type memorySubscription struct {
	bus  *MemoryBus
	name string
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if m := s.bus.subs[s.name]; m != nil {
		delete(m, s)
	}
	return nil
}
