// Package store persists the trade journal: positions across restarts
// and a record of every actionable decision. The pipeline works without
// it; a nil Store disables persistence.
package store

import (
	"context"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

type Store interface {
	// SavePosition inserts or updates a position by ID.
	SavePosition(ctx context.Context, p model.Position) error
	// OpenPositions returns every position that is not terminal,
	// used to rebuild tracker state on startup.
	OpenPositions(ctx context.Context) ([]model.Position, error)
	// RecordDecision journals an actionable decision for later
	// calibration review.
	RecordDecision(ctx context.Context, d model.Decision) error
	// SaveAccountView appends a point-in-time account snapshot.
	SaveAccountView(ctx context.Context, v account.View) error
	Close() error
}
