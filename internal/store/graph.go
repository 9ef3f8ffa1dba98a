package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/causal/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GraphStore persists graph specs as JSONB in causal_graphs.
type GraphStore struct {
	db *pgxpool.Pool
}

func NewGraphStore(db *pgxpool.Pool) *GraphStore {
	return &GraphStore{db: db}
}

// Save upserts rec. A record whose version is older than the stored one is
// rejected with ErrConflict.
func (s *GraphStore) Save(ctx context.Context, rec *domain.GraphRecord) error {
	spec, err := json.Marshal(rec.Spec)
	if err != nil {
		return fmt.Errorf("encode graph spec: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO causal_graphs (id, name, spec, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     spec = EXCLUDED.spec,
		     version = EXCLUDED.version,
		     updated_at = EXCLUDED.updated_at
		 WHERE causal_graphs.version <= EXCLUDED.version
		 RETURNING created_at, updated_at`,
		rec.ID, rec.Name, spec, int64(rec.Version), rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrConflict
	}
	return err
}

func (s *GraphStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GraphRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, name, spec, version, created_at, updated_at
		 FROM causal_graphs WHERE id = $1`,
		id,
	)
	rec, err := scanGraph(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *GraphStore) List(ctx context.Context) ([]domain.GraphRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, spec, version, created_at, updated_at
		 FROM causal_graphs ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GraphRecord
	for rows.Next() {
		rec, err := scanGraph(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *GraphStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM causal_graphs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanGraph(row pgx.Row) (*domain.GraphRecord, error) {
	var (
		rec     domain.GraphRecord
		spec    []byte
		version int64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &spec, &version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(spec, &rec.Spec); err != nil {
		return nil, fmt.Errorf("decode graph spec %s: %w", rec.ID, err)
	}
	rec.Version = uint64(version)
	return &rec, nil
}
