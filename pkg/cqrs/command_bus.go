package cqrs

import (
	"context"
	"errors"
)

// ErrBusShuttingDown is returned when a message is dispatched to a bus that is shutting down.
var ErrBusShuttingDown = errors.New("bus is shutting down")

// DefaultCommandBus is a simple implementation of the CommandBus interface.
type DefaultCommandBus struct {
	*Bus
}

// NewCommandBus creates a new DefaultCommandBus. When ctx is cancelled the bus
// stops accepting commands.
func NewCommandBus(ctx context.Context) *DefaultCommandBus {
	b := &DefaultCommandBus{
		Bus: NewBus("command"),
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			b.Shutdown()
		}()
	}

	return b
}

// Dispatch sends a command to its appropriate handler.
func (b *DefaultCommandBus) Dispatch(ctx context.Context, cmd Command) (interface{}, error) {
	return b.call(ctx, cmd)
}
