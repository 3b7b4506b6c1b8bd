package cqrs

import "context"

// Command represents a command that changes the state of the system.
// Commands are named with verbs in imperative form (e.g., "BackupUnit").
type Command interface {
	NameProvider
}

// CommandHandler defines the interface for handling commands that only
// report success or failure.
type CommandHandler[C Command] interface {
	Handle(ctx context.Context, cmd C) error
}

// ReportingCommandHandler handles commands that also return an outcome report.
type ReportingCommandHandler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// CommandBus is responsible for dispatching commands to their handlers.
type CommandBus interface {
	ActionProvider

	// Dispatch sends a command to its handler. The returned value is the
	// handler's report, or nil for handlers that only return an error.
	Dispatch(ctx context.Context, cmd Command) (interface{}, error)
}
