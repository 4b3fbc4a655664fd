package driven

import (
	"context"

	"github.com/ericfisherdev/prmonitor/internal/domain/model"
)

// Messenger broadcasts messages between independent parts of the program.
// Delivery is asynchronous: Send never waits for listeners to run.
type Messenger interface {
	// Listen registers a callback and returns a function that unregisters it.
	Listen(func(model.Message)) (cancel func())
	Send(msg model.Message)
}

// Connectivity reports whether the network is reachable.
type Connectivity interface {
	IsOnline(ctx context.Context) bool
}
