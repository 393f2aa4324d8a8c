package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

// DB is the subset of *pgxpool.Pool used by the stores.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// ExperimentStore persists experiments as JSON documents with a version
// column used for compare-and-swap updates.
type ExperimentStore struct {
	db DB
}

// NewExperimentStore creates a store on db.
func NewExperimentStore(db DB) *ExperimentStore {
	return &ExperimentStore{db: db}
}

// Insert adds a new experiment. A taken id yields ErrExperimentExists.
func (s *ExperimentStore) Insert(ctx context.Context, exp *experiment.Experiment) error {
	doc, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("encode experiment %s: %w", exp.ID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO experiments (id, flag, state, version, definition, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)`,
		exp.ID, exp.Flag, exp.State, exp.Version, doc, exp.CreatedAt, exp.UpdatedAt)
	if IsDuplicateKeyError(err) {
		return experiment.ErrExperimentExists
	}
	if err != nil {
		return fmt.Errorf("insert experiment %s: %w", exp.ID, err)
	}
	return nil
}

// Update replaces the stored experiment only if its version still equals
// expectedVersion.
func (s *ExperimentStore) Update(ctx context.Context, exp *experiment.Experiment, expectedVersion int64) error {
	doc, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("encode experiment %s: %w", exp.ID, err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE experiments
		   SET flag = NULLIF($2, ''), state = $3, version = $4, definition = $5, updated_at = $6
		 WHERE id = $1 AND version = $7`,
		exp.ID, exp.Flag, exp.State, exp.Version, doc, exp.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update experiment %s: %w", exp.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM experiments WHERE id = $1)`, exp.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check experiment %s: %w", exp.ID, err)
	}
	if !exists {
		return experiment.ErrNotFound
	}
	return experiment.ErrConcurrentModification
}

// Get loads one experiment or returns ErrNotFound.
func (s *ExperimentStore) Get(ctx context.Context, id string) (*experiment.Experiment, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT definition FROM experiments WHERE id = $1`, id).Scan(&doc)
	if IsNotFoundError(err) {
		return nil, experiment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment %s: %w", id, err)
	}
	return decodeExperiment(doc)
}

// List loads every experiment ordered by id.
func (s *ExperimentStore) List(ctx context.Context) ([]*experiment.Experiment, error) {
	rows, err := s.db.Query(ctx, `SELECT definition FROM experiments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}

	out := make([]*experiment.Experiment, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		exp, err := decodeExperiment(doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, exp)
	}
	return out, errors.Join(errs...)
}

func decodeExperiment(doc []byte) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	if err := json.Unmarshal(doc, &exp); err != nil {
		return nil, fmt.Errorf("decode experiment: %w", err)
	}
	return &exp, nil
}
