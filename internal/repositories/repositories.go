// package repositories provides persistence for every entity the pipeline owns.
//
// Writes are idempotent: repeated calls with the same natural key converge on one row and report
// a [models.ChangeResult] instead of failing on conflicts.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// operationTimeout bounds every single-statement call so a stuck connection cannot hang a worker.
const operationTimeout = 5 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, operationTimeout)
}

// scanChange turns a `RETURNING id` row into a [models.ChangeResult]; no row means nothing changed.
func scanChange(row *sql.Row) (models.ChangeResult, error) {
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Unchanged, nil
	}
	if err != nil {
		return models.Unchanged, err
	}
	return models.Changed(id), nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s not found: %s: %w", kind, key, shared.ErrNotFound)
}
