package ports

import (
	"context"
	"time"
)

// UsageSource reports how well a version has performed.
type UsageSource interface {
	// SuccessRate returns a rate in [0,1]. ok is false when there is no
	// usable signal for the version.
	SuccessRate(ctx context.Context, componentID, versionID string) (rate float64, ok bool, err error)
}

// UsageRecord is one observed outcome of a composed prompt.
type UsageRecord struct {
	ComponentID string
	VersionID   string
	Success     bool
	Latency     time.Duration
	RecordedAt  time.Time
}

// UsageRecorder persists usage outcomes.
type UsageRecorder interface {
	Record(ctx context.Context, rec UsageRecord) error
}
