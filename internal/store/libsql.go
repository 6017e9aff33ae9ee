package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/wfgraph/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Definitions ---

// PutDefinition inserts or replaces a definition. Name and version default
// to the definition's own.
func (s *LibSQLStore) PutDefinition(ctx context.Context, rec *DefinitionRecord) error {
	if rec.Definition == nil {
		return schema.NewError(schema.ErrCodeValidation, "definition record has no definition")
	}
	if rec.Name == "" {
		rec.Name = rec.Definition.Name
	}
	if rec.Version == 0 {
		rec.Version = rec.Definition.Version
	}
	if rec.Description == "" {
		rec.Description = rec.Definition.Description
	}
	if rec.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "definition has no name")
	}

	def, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	rec.CreatedAt = timeOrNow(rec.CreatedAt)
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO definitions (name, version, description, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name, version) DO UPDATE SET description=excluded.description, definition=excluded.definition, updated_at=excluded.updated_at`,
		rec.Name, rec.Version, nullStr(rec.Description), string(def), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return storeErr("put definition", err)
	}
	return nil
}

// GetDefinition returns one version of a definition. A version of 0 or less
// returns the latest version.
func (s *LibSQLStore) GetDefinition(ctx context.Context, name string, version int) (*DefinitionRecord, error) {
	query := `SELECT name, version, description, definition, created_at, updated_at FROM definitions WHERE name = ?`
	args := []any{name}
	if version > 0 {
		query += ` AND version = ?`
		args = append(args, version)
	}
	query += ` ORDER BY version DESC LIMIT 1`

	rec, err := scanDefinition(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, storeNotFound("definition", fmt.Sprintf("%s/%d", name, version))
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListDefinitions returns definitions ordered by name, newest version first.
func (s *LibSQLStore) ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]*DefinitionRecord, error) {
	var where []string
	var args []any

	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}

	query := "SELECT name, version, description, definition, created_at, updated_at FROM definitions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name, version DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list definitions", err)
	}
	defer rows.Close()

	var defs []*DefinitionRecord
	for rows.Next() {
		rec, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, rec)
	}
	return defs, rows.Err()
}

// DeleteDefinition removes one version of a definition.
func (s *LibSQLStore) DeleteDefinition(ctx context.Context, name string, version int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM definitions WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return storeErr("delete definition", err)
	}
	return checkRowsAffected(res, "definition", fmt.Sprintf("%s/%d", name, version))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*DefinitionRecord, error) {
	rec := &DefinitionRecord{}
	var desc sql.NullString
	var defJSON string
	if err := row.Scan(&rec.Name, &rec.Version, &desc, &defJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Description = desc.String
	rec.Definition = &schema.WorkflowDefinition{}
	if err := json.Unmarshal([]byte(defJSON), rec.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return rec, nil
}

// --- Executions ---

// PutExecution inserts or replaces an execution. An execution without a
// workflow id is assigned a random one.
func (s *LibSQLStore) PutExecution(ctx context.Context, rec *ExecutionRecord) error {
	exec := rec.Execution
	if exec == nil {
		return schema.NewError(schema.ErrCodeValidation, "execution record has no execution")
	}
	if rec.ID == "" {
		rec.ID = exec.WorkflowID
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	exec.WorkflowID = rec.ID
	rec.WorkflowName = exec.WorkflowName
	rec.WorkflowVersion = exec.WorkflowVersion
	rec.Status = exec.Status

	body, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	rec.CreatedAt = timeOrNow(rec.CreatedAt)
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_name, workflow_version, status, execution, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET workflow_name=excluded.workflow_name, workflow_version=excluded.workflow_version,
		   status=excluded.status, execution=excluded.execution, updated_at=excluded.updated_at`,
		rec.ID, nullStr(rec.WorkflowName), rec.WorkflowVersion, string(rec.Status), string(body), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return storeErr("put execution", err)
	}
	return nil
}

// GetExecution returns a cached execution by workflow id.
func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	rec, err := scanExecution(s.db.QueryRowContext(ctx,
		`SELECT id, workflow_name, workflow_version, status, execution, created_at, updated_at
		 FROM executions WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListExecutions returns executions, most recently updated first.
func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*ExecutionRecord, error) {
	var where []string
	var args []any

	if filter.WorkflowName != "" {
		where = append(where, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "updated_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT id, workflow_name, workflow_version, status, execution, created_at, updated_at FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list executions", err)
	}
	defer rows.Close()

	var execs []*ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, rec)
	}
	return execs, rows.Err()
}

// DeleteExecution removes a cached execution.
func (s *LibSQLStore) DeleteExecution(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete execution", err)
	}
	return checkRowsAffected(res, "execution", id)
}

// DeleteExecutionsBefore removes executions last updated before the cutoff
// and returns how many were removed.
func (s *LibSQLStore) DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE updated_at < ?`, before.UTC())
	if err != nil {
		return 0, storeErr("prune executions", err)
	}
	return res.RowsAffected()
}

func scanExecution(row rowScanner) (*ExecutionRecord, error) {
	rec := &ExecutionRecord{}
	var name sql.NullString
	var version sql.NullInt64
	var status, body string
	if err := row.Scan(&rec.ID, &name, &version, &status, &body, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.WorkflowName = name.String
	rec.WorkflowVersion = int(version.Int64)
	rec.Status = schema.WorkflowStatus(status)
	rec.Execution = &schema.Execution{}
	if err := json.Unmarshal([]byte(body), rec.Execution); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return rec, nil
}

// --- Edits ---

// GetEdits returns edits of a definition with sequence > since, ordered by sequence ASC.
func (s *LibSQLStore) GetEdits(ctx context.Context, definitionName string, since int64) ([]*EditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, definition_name, sequence, operation, task_ref, from_version, to_version, payload, timestamp
		 FROM edits WHERE definition_name = ? AND sequence > ? ORDER BY sequence ASC`,
		definitionName, since,
	)
	if err != nil {
		return nil, storeErr("get edits", err)
	}
	defer rows.Close()

	var edits []*EditEvent
	for rows.Next() {
		e := &EditEvent{}
		var taskRef, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.DefinitionName, &e.Sequence, &e.Operation, &taskRef,
			&e.FromVersion, &e.ToVersion, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.TaskRef = taskRef.String
		e.Payload = rawOrNil(payload)
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.GraphError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeErr(op string, err error) *schema.GraphError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
