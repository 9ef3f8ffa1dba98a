package domain

import (
	"context"

	"github.com/google/uuid"
)

// CausalGraphStore persists registered graphs so the registry can be rebuilt
// after a restart. Save is an upsert keyed by record ID that refuses to
// replace a newer version.
type CausalGraphStore interface {
	Save(ctx context.Context, rec *GraphRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*GraphRecord, error)
	List(ctx context.Context) ([]GraphRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
