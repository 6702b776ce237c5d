package forge

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/forge/pkg/adapters/memory"
	"github.com/aretw0/forge/pkg/audit"
	"github.com/aretw0/forge/pkg/compose"
	"github.com/aretw0/forge/pkg/domain"
	"github.com/aretw0/forge/pkg/observability"
	"github.com/aretw0/forge/pkg/ports"
	"github.com/aretw0/forge/pkg/registry"
	"github.com/aretw0/forge/pkg/resolver"
	"github.com/aretw0/forge/pkg/scanner"
	"github.com/aretw0/forge/pkg/store"
	"github.com/aretw0/forge/pkg/vcs"
	"github.com/google/uuid"
)

// Forge is the high-level entry point for the library.
// It wires the version store, the engines and the post-mutation hooks.
type Forge struct {
	store    *store.Store
	vcs      *vcs.Engine
	registry *registry.Registry
	resolver *resolver.Resolver
	composer *compose.Engine
	audit    *audit.Trail

	kv         ports.KVStore
	scanner    *scanner.Scanner
	metrics    *observability.Metrics
	usage      ports.UsageSource
	publisher  ports.EventPublisher
	hooks      domain.LifecycleHooks
	tieBreaker resolver.TieBreaker
	tokenLimit int
	noAudit    bool
	now        func() time.Time
	logger     *slog.Logger
}

// Option defines a functional option for configuring Forge.
type Option func(*Forge)

// WithStore sets the key-value store. The default is an in-memory store.
func WithStore(kv ports.KVStore) Option {
	return func(f *Forge) {
		f.kv = kv
	}
}

// WithLogger sets a custom structured logger for every engine.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Forge) {
		f.logger = logger
	}
}

// WithMetrics records engine metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Forge) {
		f.metrics = m
	}
}

// WithScanner replaces the default content scanner.
func WithScanner(s *scanner.Scanner) Option {
	return func(f *Forge) {
		f.scanner = s
	}
}

// WithUsageSource enables the best_performing strategy.
func WithUsageSource(src ports.UsageSource) Option {
	return func(f *Forge) {
		f.usage = src
	}
}

// WithPublisher publishes an event after every mutation.
func WithPublisher(p ports.EventPublisher) Option {
	return func(f *Forge) {
		f.publisher = p
	}
}

// WithLifecycleHooks registers hooks that run after the built-in ones.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(f *Forge) {
		f.hooks = hooks
	}
}

// WithTieBreaker sets the best_performing tie policy.
func WithTieBreaker(tb resolver.TieBreaker) Option {
	return func(f *Forge) {
		f.tieBreaker = tb
	}
}

// WithTokenLimit sets the composition token budget.
func WithTokenLimit(n int) Option {
	return func(f *Forge) {
		f.tokenLimit = n
	}
}

// WithoutAudit disables the audit trail.
func WithoutAudit() Option {
	return func(f *Forge) {
		f.noAudit = true
	}
}

// WithClock overrides the time source of every engine.
func WithClock(now func() time.Time) Option {
	return func(f *Forge) {
		f.now = now
	}
}

// New wires a Forge instance.
func New(opts ...Option) *Forge {
	f := &Forge{}
	for _, opt := range opts {
		opt(f)
	}
	if f.kv == nil {
		f.kv = memory.NewStore()
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if f.scanner == nil {
		f.scanner = scanner.New()
	}
	if f.publisher == nil {
		f.publisher = ports.NopPublisher{}
	}
	if f.now == nil {
		f.now = time.Now
	}

	f.store = store.New(f.kv)

	hooks := []domain.LifecycleHooks{f.metrics.Hooks()}
	if !f.noAudit {
		f.audit = audit.New(f.kv, audit.WithLogger(f.logger), audit.WithMetrics(f.metrics))
		hooks = append(hooks, f.audit.Hooks())
	}
	hooks = append(hooks, f.publishHooks(), f.hooks)
	chain := domain.ChainHooks(hooks...)

	f.vcs = vcs.New(f.store,
		vcs.WithLogger(f.logger),
		vcs.WithScanner(f.scanner),
		vcs.WithMetrics(f.metrics),
		vcs.WithLifecycleHooks(chain),
		vcs.WithClock(f.now),
	)
	f.registry = registry.NewRegistry(f.store, f.vcs,
		registry.WithLogger(f.logger),
		registry.WithLifecycleHooks(chain),
		registry.WithClock(f.now),
	)

	resolverOpts := []resolver.Option{resolver.WithLogger(f.logger)}
	if f.usage != nil {
		resolverOpts = append(resolverOpts, resolver.WithUsageSource(f.usage))
	}
	if f.tieBreaker != nil {
		resolverOpts = append(resolverOpts, resolver.WithTieBreaker(f.tieBreaker))
	}
	f.resolver = resolver.New(f.registry, f.vcs, resolverOpts...)

	composeOpts := []compose.Option{
		compose.WithLogger(f.logger),
		compose.WithMetrics(f.metrics),
		compose.WithClock(f.now),
	}
	if f.tokenLimit > 0 {
		composeOpts = append(composeOpts, compose.WithTokenLimit(f.tokenLimit))
	}
	f.composer = compose.New(f.resolver, composeOpts...)
	return f
}

func (f *Forge) publishHooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMutation: func(ctx context.Context, ev *domain.MutationEvent) {
			event := ports.Event{
				ID:            uuid.NewString(),
				Type:          ev.Type,
				Slug:          ev.Component.Slug,
				CorrelationID: ports.CorrelationID(ctx),
				Timestamp:     ev.Timestamp,
				Data:          eventData(ev),
			}
			if err := f.publisher.Publish(ctx, event); err != nil {
				f.logger.WarnContext(ctx, "events.publish_failed", "type", ev.Type, "slug", ev.Component.Slug, "err", err)
				f.metrics.PublishFailed()
			}
		},
	}
}

func eventData(ev *domain.MutationEvent) map[string]any {
	data := map[string]any{
		"component_id": ev.Component.ID,
		"slug":         ev.Component.Slug,
		"kind":         string(ev.Component.Kind),
	}
	if ev.Actor != "" {
		data["actor"] = ev.Actor
	}
	if ev.Version != nil {
		data["version_id"] = ev.Version.ID
		data["sequence"] = ev.Version.Sequence
		data["branch"] = ev.Version.Branch
	}
	if ev.Branch != nil {
		data["branch"] = ev.Branch.Name
		data["status"] = string(ev.Branch.Status)
	}
	for k, v := range ev.Details {
		data[k] = v
	}
	return data
}

// Store returns the version store.
func (f *Forge) Store() *store.Store { return f.store }

// VCS returns the version control engine.
func (f *Forge) VCS() *vcs.Engine { return f.vcs }

// Registry returns the component registry.
func (f *Forge) Registry() *registry.Registry { return f.registry }

// Resolver returns the version resolver.
func (f *Forge) Resolver() *resolver.Resolver { return f.resolver }

// Composer returns the composition engine.
func (f *Forge) Composer() *compose.Engine { return f.composer }

// Audit returns the audit trail, or nil when disabled.
func (f *Forge) Audit() *audit.Trail { return f.audit }

// Register registers a component, committing its initial document if given.
func (f *Forge) Register(ctx context.Context, req registry.RegisterRequest) (domain.Component, *domain.Version, error) {
	return f.registry.Register(ctx, req)
}

// Commit appends a version on a branch of the component identified by slug.
func (f *Forge) Commit(ctx context.Context, slug string, req vcs.CommitRequest) (domain.Version, error) {
	comp, err := f.registry.Lookup(ctx, slug)
	if err != nil {
		return domain.Version{}, err
	}
	req.ComponentID = comp.ID
	return f.vcs.Commit(ctx, req)
}

// Compose assembles a prompt from the requested components.
func (f *Forge) Compose(ctx context.Context, req compose.Request) (compose.Result, error) {
	return f.composer.Compose(ctx, req)
}

// Close releases the underlying store and publisher.
func (f *Forge) Close() error {
	if c, ok := f.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			f.logger.Warn("failed to close publisher", "err", err)
		}
	}
	return f.store.Close()
}
