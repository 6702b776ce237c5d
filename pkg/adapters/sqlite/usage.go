package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/ports"
)

// DefaultMinSamples is the number of outcomes a version needs before its
// success rate is reported.
const DefaultMinSamples = 3

// UsageLog records outcomes in the usage table of a Store's database.
type UsageLog struct {
	store      *Store
	minSamples int
}

// UsageOption configures a UsageLog.
type UsageOption func(*UsageLog)

// WithMinSamples sets the sample threshold below which no rate is reported.
func WithMinSamples(n int) UsageOption {
	return func(u *UsageLog) {
		if n > 0 {
			u.minSamples = n
		}
	}
}

// UsageLog returns a usage log sharing the store's connection.
func (s *Store) UsageLog(opts ...UsageOption) *UsageLog {
	u := &UsageLog{store: s, minSamples: DefaultMinSamples}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Record appends one outcome.
func (u *UsageLog) Record(ctx context.Context, rec ports.UsageRecord) error {
	at := rec.RecordedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := u.store.db.ExecContext(ctx,
		`INSERT INTO usage (component_id, version_id, success, latency_ms, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ComponentID, rec.VersionID, success, rec.Latency.Milliseconds(), at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Unavailable(fmt.Errorf("sqlite record usage: %w", err))
	}
	return nil
}

// SuccessRate aggregates recorded outcomes for the version.
func (u *UsageLog) SuccessRate(ctx context.Context, componentID, versionID string) (float64, bool, error) {
	var total, successes int
	err := u.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM usage WHERE component_id = ? AND version_id = ?`,
		componentID, versionID,
	).Scan(&total, &successes)
	if err != nil {
		return 0, false, domain.Unavailable(fmt.Errorf("sqlite success rate: %w", err))
	}
	if total < u.minSamples {
		return 0, false, nil
	}
	return float64(successes) / float64(total), true, nil
}
