// Package messenger implements the Messenger port as an in-process broadcast bus.
package messenger

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
	"github.com/ericfisherdev/prmonitor/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Messenger = (*Bus)(nil)

// Bus delivers every sent message to every listener. Each listener has its own
// unbounded queue drained by its own goroutine, so Send never blocks and a
// listener may call back into the sender.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]*listener
	closed    bool
}

type listener struct {
	fn     func(model.Message)
	mu     sync.Mutex
	queue  []model.Message
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[int]*listener)}
}

// Listen registers fn. The returned function unregisters it; messages queued
// but not yet delivered are dropped.
func (b *Bus) Listen(fn func(model.Message)) func() {
	l := &listener{
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()

	go l.run()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
		l.stop()
	}
}

// Send queues msg for every current listener. A missing ID is filled in.
func (b *Bus) Send(msg model.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	slog.Debug("message sent", "id", msg.ID, "kind", msg.Kind, "listeners", len(b.listeners))
	for _, l := range b.listeners {
		l.enqueue(msg)
	}
}

// Close unregisters every listener and waits for in-flight deliveries to
// finish. Later Listen calls register nothing.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	listeners := b.listeners
	b.listeners = make(map[int]*listener)
	b.mu.Unlock()

	for _, l := range listeners {
		l.stop()
		<-l.exited
	}
}

func (l *listener) stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *listener) enqueue(msg model.Message) {
	l.mu.Lock()
	l.queue = append(l.queue, msg)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			msg := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()

			select {
			case <-l.done:
				return
			default:
			}
			l.deliver(msg)
		}
	}
}

func (l *listener) deliver(msg model.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("message listener panicked", "id", msg.ID, "kind", msg.Kind, "panic", r)
		}
	}()
	l.fn(msg)
}
