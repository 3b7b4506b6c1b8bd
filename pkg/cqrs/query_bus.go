package cqrs

import "context"

// DefaultQueryBus is a simple implementation of the QueryBus interface.
type DefaultQueryBus struct {
	*Bus
}

// NewQueryBus creates a new DefaultQueryBus.
func NewQueryBus() *DefaultQueryBus {
	return &DefaultQueryBus{Bus: NewBus("query")}
}

// Dispatch sends a query to its appropriate handler and returns the result.
func (b *DefaultQueryBus) Dispatch(ctx context.Context, query Query) (interface{}, error) {
	return b.call(ctx, query)
}
