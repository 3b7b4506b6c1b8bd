// Package cqrs implements the Command Query Responsibility Segregation pattern.
package cqrs

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// NameProvider is an interface for both Command and Query types
// that provides a way to get the name of the message.
type NameProvider interface {
	// Name returns the name of the message (command or query).
	Name() string
}

// ActionProvider defines the handler management and lifecycle part shared by
// the command and query buses.
type ActionProvider interface {
	// Register registers a handler for the message type of its Handle method.
	Register(handler interface{}) error

	// Shutdown initiates a graceful shutdown of the bus.
	// New messages will be rejected, but existing ones will be allowed to complete.
	Shutdown()

	// WaitForCompletion waits for all active messages to complete.
	WaitForCompletion()
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Bus is a generic implementation that can be used by both command and query buses.
type Bus struct {
	handlers       map[string]interface{}
	mutex          sync.RWMutex
	isShuttingDown bool
	activeMessages sync.WaitGroup
	busType        string // "command" or "query"
}

// NewBus creates a new Bus with the specified type.
func NewBus(busType string) *Bus {
	return &Bus{
		handlers: make(map[string]interface{}),
		busType:  busType,
	}
}

// Register registers a handler whose method is Handle(context.Context, M) with
// M implementing NameProvider. The handler must return error or (R, error).
func (b *Bus) Register(handler interface{}) error {
	handlerType := reflect.TypeOf(handler)
	if handlerType == nil || handlerType.Kind() != reflect.Ptr {
		return fmt.Errorf("handler must be a pointer to a struct, got %T", handler)
	}

	handleMethod, exists := handlerType.MethodByName("Handle")
	if !exists {
		return fmt.Errorf("handler %T does not implement Handle method", handler)
	}

	methodType := handleMethod.Type
	if methodType.NumIn() != 3 { // receiver + ctx + message
		return fmt.Errorf("Handle method must take a context and the %s", b.busType)
	}
	if !methodType.In(1).Implements(contextType) {
		return fmt.Errorf("first Handle parameter of %T must be context.Context", handler)
	}
	switch methodType.NumOut() {
	case 1, 2:
		if !methodType.Out(methodType.NumOut() - 1).Implements(errorType) {
			return fmt.Errorf("last Handle result of %T must be an error", handler)
		}
	default:
		return fmt.Errorf("Handle method of %T must return error or (result, error)", handler)
	}

	msgType := methodType.In(2)
	msg, ok := reflect.New(msgType).Elem().Interface().(NameProvider)
	if !ok {
		return fmt.Errorf("parameter type %s does not implement the %s interface", msgType, b.busType)
	}
	name := msg.Name()

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("handler for %s %s already registered", b.busType, name)
	}
	b.handlers[name] = handler
	return nil
}

// Shutdown initiates a graceful shutdown of the bus.
func (b *Bus) Shutdown() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.isShuttingDown = true
}

// WaitForCompletion waits for all active messages to complete.
func (b *Bus) WaitForCompletion() {
	b.activeMessages.Wait()
}

// IsShuttingDown returns true if the bus is shutting down.
func (b *Bus) IsShuttingDown() bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.isShuttingDown
}

// GetHandler returns the handler for the given message name.
func (b *Bus) GetHandler(messageName string) (interface{}, bool) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	handler, exists := b.handlers[messageName]
	return handler, exists
}

// call invokes handler.Handle(ctx, msg) and normalises its results.
func (b *Bus) call(ctx context.Context, msg NameProvider) (interface{}, error) {
	b.mutex.RLock()
	if b.isShuttingDown {
		b.mutex.RUnlock()
		return nil, fmt.Errorf("%w: %s %s", ErrBusShuttingDown, b.busType, msg.Name())
	}
	handler, exists := b.handlers[msg.Name()]
	if exists {
		b.activeMessages.Add(1)
	}
	b.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no handler registered for %s %s", b.busType, msg.Name())
	}
	defer b.activeMessages.Done()

	results := reflect.ValueOf(handler).MethodByName("Handle").Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(msg),
	})

	var result interface{}
	if len(results) == 2 {
		result = results[0].Interface()
	}
	if errVal := results[len(results)-1]; !errVal.IsNil() {
		return result, errVal.Interface().(error)
	}
	return result, nil
}
