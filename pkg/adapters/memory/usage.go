package memory

import (
	"context"
	"sync"

	"github.com/aretw0/forge/pkg/ports"
)

// DefaultMinSamples is the number of outcomes a version needs before its
// success rate is reported.
const DefaultMinSamples = 3

type tally struct {
	total     int
	successes int
}

// UsageLog implements ports.UsageSource and ports.UsageRecorder in memory.
type UsageLog struct {
	mu         sync.RWMutex
	counts     map[string]*tally
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

// NewUsageLog creates an empty usage log.
func NewUsageLog(opts ...UsageOption) *UsageLog {
	u := &UsageLog{
		counts:     make(map[string]*tally),
		minSamples: DefaultMinSamples,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func usageKey(componentID, versionID string) string {
	return componentID + "/" + versionID
}

// Record adds one outcome.
func (u *UsageLog) Record(ctx context.Context, rec ports.UsageRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	k := usageKey(rec.ComponentID, rec.VersionID)
	t, ok := u.counts[k]
	if !ok {
		t = &tally{}
		u.counts[k] = t
	}
	t.total++
	if rec.Success {
		t.successes++
	}
	return nil
}

// SuccessRate returns successes/total once the threshold is met.
func (u *UsageLog) SuccessRate(ctx context.Context, componentID, versionID string) (float64, bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	t, ok := u.counts[usageKey(componentID, versionID)]
	if !ok || t.total < u.minSamples {
		return 0, false, nil
	}
	return float64(t.successes) / float64(t.total), true, nil
}
