package event

import (
	"log/slog"
	"sync"
)

// PreHandler runs before a mutation and may veto it or enrich the outcome.
type PreHandler func(payload Payload) Outcome

// Handler runs after a mutation has been applied.
type Handler func(payload Payload)

// Bus dispatches payloads synchronously, in registration order, on the
// caller's goroutine. A mutation is only applied when no pre-handler
// cancels.
type Bus struct {
	log  *slog.Logger
	mu   sync.RWMutex
	pre  map[Kind][]PreHandler
	post map[Kind][]Handler
}

func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		log:  log,
		pre:  make(map[Kind][]PreHandler),
		post: make(map[Kind][]Handler),
	}
}

func (b *Bus) SubscribePre(kind Kind, handler PreHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pre[kind] = append(b.pre[kind], handler)
}

func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.post[kind] = append(b.post[kind], handler)
}

// DispatchPre asks all pre-handlers for the payload's kind. The first cancel
// wins and stops the chain; otherwise the last non-empty token and password
// override are kept.
func (b *Bus) DispatchPre(payload Payload) Outcome {
	b.mu.RLock()
	handlers := b.pre[payload.EventKind()]
	b.mu.RUnlock()

	merged := Proceed()
	for _, handler := range handlers {
		out := handler(payload)
		if out.Canceled() {
			b.log.Debug("mutation vetoed",
				"kind", string(payload.EventKind()), "reason", out.Reason())
			return out
		}
		if out.token != "" {
			merged.token = out.token
		}
		if out.passwordValid != nil {
			merged.passwordValid = out.passwordValid
		}
	}
	return merged
}

func (b *Bus) Dispatch(payload Payload) {
	b.mu.RLock()
	handlers := b.post[payload.EventKind()]
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
}
