package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/wfgraph/pkg/schema"
)

// AppendEdit appends an edit with a monotonically increasing per-definition
// sequence.
func (s *LibSQLStore) AppendEdit(ctx context.Context, edit *EditEvent) error {
	if edit.DefinitionName == "" || edit.Operation == "" {
		return schema.NewError(schema.ErrCodeValidation, "edit needs a definition name and an operation")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM edits WHERE definition_name = ?`, edit.DefinitionName,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}

	if edit.Timestamp.IsZero() {
		edit.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO edits (definition_name, sequence, operation, task_ref, from_version, to_version, payload, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		edit.DefinitionName, seq, edit.Operation, nullStr(edit.TaskRef),
		edit.FromVersion, edit.ToVersion, nullRaw(edit.Payload), edit.Timestamp,
	)
	if err != nil {
		return storeErr("insert edit", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("edit id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edit: %w", err)
	}
	edit.ID = id
	edit.Sequence = seq
	return nil
}

// EditLog reads the edit history of definitions.
type EditLog struct {
	store Store
}

// NewEditLog wraps a Store.
func NewEditLog(s Store) *EditLog {
	return &EditLog{store: s}
}

// History returns every edit of a definition in sequence order. Returns an
// error if sequence gaps are detected.
func (el *EditLog) History(ctx context.Context, definitionName string) ([]*EditEvent, error) {
	edits, err := el.store.GetEdits(ctx, definitionName, 0)
	if err != nil {
		return nil, fmt.Errorf("get edits: %w", err)
	}
	for i, e := range edits {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in edits of %s: expected %d, got %d", definitionName, expected, e.Sequence)
		}
	}
	return edits, nil
}

// LatestVersion returns the version produced by the last edit, or 0 when the
// definition was never edited.
func (el *EditLog) LatestVersion(ctx context.Context, definitionName string) (int, error) {
	edits, err := el.History(ctx, definitionName)
	if err != nil {
		return 0, err
	}
	if len(edits) == 0 {
		return 0, nil
	}
	return edits[len(edits)-1].ToVersion, nil
}
