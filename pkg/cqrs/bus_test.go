package cqrs

import (
	"context"
	"errors"
	"testing"
)

type pruneCommand struct{ Keep int }

func (pruneCommand) Name() string { return "Prune" }

type pruneHandler struct{ got int }

func (h *pruneHandler) Handle(_ context.Context, cmd pruneCommand) error {
	h.got = cmd.Keep
	if cmd.Keep < 0 {
		return errors.New("negative keep")
	}
	return nil
}

type countQuery struct{ Unit string }

func (countQuery) Name() string { return "Count" }

type countHandler struct{}

func (countHandler) lookup(unit string) int { return len(unit) }

func (h *countHandler) Handle(_ context.Context, q countQuery) (int, error) {
	return h.lookup(q.Unit), nil
}

type badHandler struct{}

func (h *badHandler) Handle(cmd pruneCommand) error { return nil }

func TestCommandBusDispatch(t *testing.T) {
	bus := NewCommandBus(nil)
	h := &pruneHandler{}
	if err := bus.Register(h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := bus.Dispatch(context.Background(), pruneCommand{Keep: 7}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if h.got != 7 {
		t.Errorf("handler saw keep=%d, want 7", h.got)
	}
	if _, err := bus.Dispatch(context.Background(), pruneCommand{Keep: -1}); err == nil {
		t.Error("expected handler error to propagate")
	}
}

func TestRegisterRejects(t *testing.T) {
	bus := NewCommandBus(nil)
	if err := bus.Register(&badHandler{}); err == nil {
		t.Error("handler without context parameter was accepted")
	}
	if err := bus.Register(pruneHandler{}); err == nil {
		t.Error("non-pointer handler was accepted")
	}
	if err := bus.Register(&pruneHandler{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := bus.Register(&pruneHandler{}); err == nil {
		t.Error("duplicate handler was accepted")
	}
}

func TestQueryBusDispatch(t *testing.T) {
	bus := NewQueryBus()
	if err := bus.Register(&countHandler{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := bus.Dispatch(context.Background(), countQuery{Unit: "auth"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n, ok := got.(int); !ok || n != 4 {
		t.Errorf("Dispatch = %v, want 4", got)
	}
	if _, err := bus.Dispatch(context.Background(), pruneCommand{}); err == nil {
		t.Error("expected error for unregistered query")
	}
}

func TestShutdownRejects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewCommandBus(nil)
	_ = bus.Register(&pruneHandler{})
	cancel()
	bus.Shutdown()
	bus.WaitForCompletion()
	if _, err := bus.Dispatch(ctx, pruneCommand{}); !errors.Is(err, ErrBusShuttingDown) {
		t.Errorf("Dispatch after shutdown = %v, want ErrBusShuttingDown", err)
	}
}
