package store

import (
	"context"
	"time"
)

// Store caches definitions and executions so the panel, CLI and MCP tools
// can rebuild graphs without refetching from the workflow server.
// All implementations must be safe for concurrent use.
type Store interface {
	// Definitions
	PutDefinition(ctx context.Context, rec *DefinitionRecord) error
	GetDefinition(ctx context.Context, name string, version int) (*DefinitionRecord, error)
	ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]*DefinitionRecord, error)
	DeleteDefinition(ctx context.Context, name string, version int) error

	// Executions
	PutExecution(ctx context.Context, rec *ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*ExecutionRecord, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, error)
	DeleteExecution(ctx context.Context, id string) error
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)

	// Edit history (append-only)
	AppendEdit(ctx context.Context, edit *EditEvent) error
	GetEdits(ctx context.Context, definitionName string, since int64) ([]*EditEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
