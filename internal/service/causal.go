package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/causal/internal/cache"
	"github.com/Harshitk-cp/causal/internal/causal"
	"github.com/Harshitk-cp/causal/internal/domain"
	"github.com/Harshitk-cp/causal/internal/metrics"
	"github.com/Harshitk-cp/causal/internal/store"
	"github.com/Harshitk-cp/causal/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrGraphNotFound is matched by *GraphNotFoundError.
var ErrGraphNotFound = errors.New("graph not found")

type GraphNotFoundError struct {
	ID uuid.UUID
}

func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf("graph %s not found", e.ID)
}

func (e *GraphNotFoundError) Unwrap() error { return ErrGraphNotFound }

// EffectCache memoizes effect estimates by graph id, graph version and query.
type EffectCache = cache.LRU[effectKey, *causal.EffectEstimate]

// NewEffectCache returns an effect cache holding at most size estimates for
// ttl each. A zero ttl keeps entries until they are evicted.
func NewEffectCache(size int, ttl time.Duration) (*EffectCache, error) {
	return cache.New[effectKey, *causal.EffectEstimate](size, ttl)
}

// effectKey identifies one effect query against one graph version. Variable
// ids are kept in separate fields so no id can collide with another query.
type effectKey struct {
	graph      uuid.UUID
	version    uint64
	treatment  string
	outcome    string
	hasControl bool
	control    float64
	hasTreated bool
	treated    float64
	// adjustment is the sorted, deduplicated set as a JSON array, or empty
	// when the caller left the set to the engine.
	adjustment string
}

// graphEntry is one registered graph. Readers load the current snapshot
// without locking; writers hold mu, mutate a clone and swap it in, so a
// query never observes a partially applied mutation.
type graphEntry struct {
	id        uuid.UUID
	name      string
	createdAt time.Time

	mu        sync.Mutex
	deleted   bool
	updatedAt time.Time
	graph     atomic.Pointer[causal.Graph]
}

// GraphDetail is a graph's full description.
type GraphDetail struct {
	domain.GraphSummary
	Spec             domain.GraphSpec `json:"spec"`
	TopologicalOrder []string         `json:"topological_order"`
}

type ServiceStats struct {
	Graphs int          `json:"graphs"`
	Cache  *cache.Stats `json:"effect_cache,omitempty"`
}

// CausalServiceOption configures optional collaborators.
type CausalServiceOption func(*CausalService)

// WithGraphStore persists every registered graph. Without a store the
// registry is in-memory only.
func WithGraphStore(gs domain.CausalGraphStore) CausalServiceOption {
	return func(s *CausalService) { s.store = gs }
}

func WithEffectCache(c *EffectCache) CausalServiceOption {
	return func(s *CausalService) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) CausalServiceOption {
	return func(s *CausalService) { s.metrics = m }
}

// CausalService owns the graph registry and dispatches queries to the
// do-calculus and counterfactual engines.
type CausalService struct {
	builder        *causal.Builder
	doCalculus     *causal.DoCalculusEngine
	counterfactual *causal.CounterfactualEngine
	store          domain.CausalGraphStore
	cache          *EffectCache
	metrics        *metrics.Metrics
	logger         *zap.Logger
	now            func() time.Time

	mu     sync.RWMutex
	graphs map[uuid.UUID]*graphEntry
}

func NewCausalService(builder *causal.Builder, opts causal.Options, logger *zap.Logger, options ...CausalServiceOption) *CausalService {
	s := &CausalService{
		builder:        builder,
		doCalculus:     causal.NewDoCalculusEngine(opts),
		counterfactual: causal.NewCounterfactualEngine(opts),
		logger:         logger,
		now:            time.Now,
		graphs:         make(map[uuid.UUID]*graphEntry),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Restore loads every persisted graph into the registry. Records that no
// longer build are logged and skipped.
func (s *CausalService) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	recs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list graphs: %w", err)
	}

	restored := 0
	for _, rec := range recs {
		g, err := s.builder.Build(rec.Spec)
		if err != nil {
			s.logger.Warn("skipping stored graph that no longer builds",
				zap.String("graph_id", rec.ID.String()),
				zap.Error(err))
			continue
		}
		g.SetVersion(rec.Version)
		s.register(rec.ID, rec.Name, rec.CreatedAt, rec.UpdatedAt, g)
		restored++
	}
	s.logger.Info("graphs restored", zap.Int("count", restored))
	return restored, nil
}

// CreateGraph validates spec, registers the graph under a new id and
// persists it.
func (s *CausalService) CreateGraph(ctx context.Context, spec domain.GraphSpec) (summary *domain.GraphSummary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "causal.CreateGraph", attribute.Int("graph.variables", len(spec.Variables)))
	defer func() { telemetry.EndSpan(span, err) }()
	defer s.observe("create_graph", time.Now(), &err)

	g, err := s.builder.Build(spec)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	now := s.now().UTC()
	if err := s.persist(ctx, id, spec.Name, now, now, g); err != nil {
		return nil, err
	}
	e := s.register(id, spec.Name, now, now, g)

	s.logger.Info("graph created",
		zap.String("graph_id", id.String()),
		zap.String("name", spec.Name),
		zap.Int("variables", g.Len()),
		zap.Int("edges", g.EdgeCount()))
	return e.summary(), nil
}

func (s *CausalService) GetGraph(ctx context.Context, id uuid.UUID) (*GraphDetail, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	g := e.graph.Load()
	return &GraphDetail{
		GraphSummary:     *e.summary(),
		Spec:             g.Spec(e.name),
		TopologicalOrder: g.TopologicalOrder(),
	}, nil
}

// ListGraphs returns every graph ordered by creation time.
func (s *CausalService) ListGraphs(ctx context.Context) []domain.GraphSummary {
	s.mu.RLock()
	entries := make([]*graphEntry, 0, len(s.graphs))
	for _, e := range s.graphs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *graphEntry) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return strings.Compare(a.id.String(), b.id.String())
	})

	out := make([]domain.GraphSummary, len(entries))
	for i, e := range entries {
		out[i] = *e.summary()
	}
	return out
}

// DeleteGraph unregisters the graph, removes it from the store and drops its
// cached results.
func (s *CausalService) DeleteGraph(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe("delete_graph", time.Now(), &err)

	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return &GraphNotFoundError{ID: id}
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete graph %s: %w", id, err)
		}
	}
	e.deleted = true

	s.mu.Lock()
	delete(s.graphs, id)
	n := len(s.graphs)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Graphs.Set(float64(n))
	}
	s.purgeCache(id)
	s.logger.Info("graph deleted", zap.String("graph_id", id.String()))
	return nil
}

func (s *CausalService) AddVariable(ctx context.Context, id uuid.UUID, v domain.Variable) (*domain.GraphSummary, error) {
	return s.mutate(ctx, id, "add_variable", func(g *causal.Graph) error {
		return g.AddVariable(v)
	})
}

func (s *CausalService) AddEdge(ctx context.Context, id uuid.UUID, edge domain.CausalEdge) (*domain.GraphSummary, error) {
	return s.mutate(ctx, id, "add_edge", func(g *causal.Graph) error {
		return g.AddCausalEdge(edge)
	})
}

func (s *CausalService) RemoveVariable(ctx context.Context, id uuid.UUID, variable string) (*domain.GraphSummary, error) {
	return s.mutate(ctx, id, "remove_variable", func(g *causal.Graph) error {
		return g.RemoveVariable(variable)
	})
}

// mutate applies fn to a clone of the current graph and publishes the clone
// once it is persisted. Writers on the same graph are serialized.
func (s *CausalService) mutate(ctx context.Context, id uuid.UUID, op string, fn func(*causal.Graph) error) (summary *domain.GraphSummary, err error) {
	ctx, span := telemetry.StartSpan(ctx, "causal."+op, attribute.String("graph.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()
	defer s.observe(op, time.Now(), &err)

	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, &GraphNotFoundError{ID: id}
	}

	next := e.graph.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.persist(ctx, id, e.name, e.createdAt, now, next); err != nil {
		return nil, err
	}
	e.updatedAt = now
	e.graph.Store(next)

	s.logger.Debug("graph updated",
		zap.String("graph_id", id.String()),
		zap.String("op", op),
		zap.Uint64("version", next.Version()))
	return e.summaryLocked(), nil
}

func (s *CausalService) Intervene(ctx context.Context, id uuid.UUID, intervention domain.Intervention, target string) (res *causal.InterventionResult, err error) {
	_, span := telemetry.StartSpan(ctx, "causal.Intervene",
		attribute.String("graph.id", id.String()),
		attribute.String("causal.target", target))
	defer func() { telemetry.EndSpan(span, err) }()
	defer s.observe("intervene", time.Now(), &err)

	g, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	return s.doCalculus.Intervene(g, intervention, target)
}

// Counterfactual evaluates scenarios against the evidence. Results keep the
// order of scenarios.
func (s *CausalService) Counterfactual(ctx context.Context, id uuid.UUID, evidence domain.Evidence, scenarios []domain.Scenario, outcome string) (res []causal.ScenarioResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "causal.Counterfactual",
		attribute.String("graph.id", id.String()),
		attribute.String("causal.outcome", outcome),
		attribute.Int("causal.scenarios", len(scenarios)))
	defer func() { telemetry.EndSpan(span, err) }()
	defer s.observe("counterfactual", time.Now(), &err)

	g, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	return s.counterfactual.CompareScenarios(ctx, g, evidence, scenarios, outcome)
}

// EstimateEffect identifies and computes the effect of q.Treatment on
// q.Outcome. Results are cached per graph version.
func (s *CausalService) EstimateEffect(ctx context.Context, id uuid.UUID, q causal.EffectQuery) (est *causal.EffectEstimate, err error) {
	_, span := telemetry.StartSpan(ctx, "causal.EstimateEffect",
		attribute.String("graph.id", id.String()),
		attribute.String("causal.treatment", q.Treatment),
		attribute.String("causal.outcome", q.Outcome))
	defer func() { telemetry.EndSpan(span, err) }()
	defer s.observe("estimate_effect", time.Now(), &err)

	g, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}

	key := newEffectKey(id, g.Version(), q)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.countCache("hit")
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
		s.countCache("miss")
	}

	est, err = s.doCalculus.EstimateEffect(g, q)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, est)
	}
	return est, nil
}

func (s *CausalService) AdjustmentSet(ctx context.Context, id uuid.UUID, treatment, outcome string) (res *causal.AdjustmentResult, err error) {
	_, span := telemetry.StartSpan(ctx, "causal.AdjustmentSet", attribute.String("graph.id", id.String()))
	defer func() { telemetry.EndSpan(span, err) }()
	defer s.observe("adjustment_set", time.Now(), &err)

	g, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	res, err = s.doCalculus.FindAdjustmentSet(g, treatment, outcome)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SearchRounds.Observe(float64(res.Iterations))
	}
	return res, nil
}

func (s *CausalService) ExplainPaths(ctx context.Context, id uuid.UUID, from, to string) (paths []causal.CausalPath, err error) {
	defer s.observe("explain_paths", time.Now(), &err)

	g, err := s.snapshot(id)
	if err != nil {
		return nil, err
	}
	return s.counterfactual.ExplainPath(g, from, to)
}

func (s *CausalService) CheckRule(ctx context.Context, id uuid.UUID, rule causal.Rule, q causal.RuleQuery) (ok bool, err error) {
	defer s.observe("check_rule", time.Now(), &err)

	g, err := s.snapshot(id)
	if err != nil {
		return false, err
	}
	return s.doCalculus.CheckRule(g, rule, q)
}

func (s *CausalService) Stats() ServiceStats {
	s.mu.RLock()
	st := ServiceStats{Graphs: len(s.graphs)}
	s.mu.RUnlock()
	if s.cache != nil {
		cs := s.cache.Stats()
		st.Cache = &cs
	}
	return st
}

func (s *CausalService) register(id uuid.UUID, name string, created, updated time.Time, g *causal.Graph) *graphEntry {
	e := &graphEntry{id: id, name: name, createdAt: created, updatedAt: updated}
	e.graph.Store(g)

	s.mu.Lock()
	s.graphs[id] = e
	n := len(s.graphs)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Graphs.Set(float64(n))
	}
	return e
}

func (s *CausalService) entry(id uuid.UUID) (*graphEntry, error) {
	s.mu.RLock()
	e, ok := s.graphs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &GraphNotFoundError{ID: id}
	}
	return e, nil
}

// snapshot returns the current immutable graph for id.
func (s *CausalService) snapshot(id uuid.UUID) (*causal.Graph, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return e.graph.Load(), nil
}

func (s *CausalService) persist(ctx context.Context, id uuid.UUID, name string, created, updated time.Time, g *causal.Graph) error {
	if s.store == nil {
		return nil
	}
	rec := &domain.GraphRecord{
		ID:        id,
		Name:      name,
		Spec:      g.Spec(name),
		Version:   g.Version(),
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save graph %s: %w", id, err)
	}
	return nil
}

func (s *CausalService) purgeCache(id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if n := s.cache.RemoveFunc(func(k effectKey) bool { return k.graph == id }); n > 0 {
		s.logger.Debug("purged cached effects", zap.String("graph_id", id.String()), zap.Int("count", n))
	}
}

func (s *CausalService) observe(op string, start time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(op, start, *err)
	}
}

func (s *CausalService) countCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func newEffectKey(id uuid.UUID, version uint64, q causal.EffectQuery) effectKey {
	k := effectKey{
		graph:     id,
		version:   version,
		treatment: q.Treatment,
		outcome:   q.Outcome,
	}
	if q.Control != nil {
		k.hasControl, k.control = true, *q.Control
	}
	if q.Treated != nil {
		k.hasTreated, k.treated = true, *q.Treated
	}
	if q.Adjustment != nil {
		adj := slices.Clone(q.Adjustment)
		slices.Sort(adj)
		// Marshaling a []string cannot fail.
		b, _ := json.Marshal(slices.Compact(adj))
		k.adjustment = string(b)
	}
	return k
}

func (e *graphEntry) summary() *domain.GraphSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryLocked()
}

func (e *graphEntry) summaryLocked() *domain.GraphSummary {
	g := e.graph.Load()
	return &domain.GraphSummary{
		ID:            e.id,
		Name:          e.name,
		VariableCount: g.Len(),
		EdgeCount:     g.EdgeCount(),
		Version:       g.Version(),
		CreatedAt:     e.createdAt,
		UpdatedAt:     e.updatedAt,
	}
}
