// Package registry manages pipeline configuration: the schema mappings,
// queues, and routing rules a pipeline owns. Every mutation is a whole-object
// replace validated against the pipeline invariants before it is stored, so
// the ingestion engine never sees a half-edited or invalid configuration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldroute/fieldroute/internal/engine"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a pipeline, queue, or rule does not exist.
var ErrNotFound = errors.New("not found")

// Queue is a routing destination owned by exactly one pipeline. Capacity 0
// means unbounded.
type Queue struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Priority       int       `json:"priority"`
	RequiredSkills []string  `json:"requiredSkills,omitempty"`
	Capacity       int       `json:"capacity"`
}

// Pipeline owns one schema (as field mappings), its queues, and its routing
// rules. Rules may only target queues of the same pipeline.
type Pipeline struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Mappings  []engine.FieldMapping `json:"mappings"`
	Queues    []Queue               `json:"queues"`
	Rules     []engine.RoutingRule  `json:"rules"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// FieldTypes exposes the pipeline's declared field types, keyed by target
// attribute, for rule validation and evaluation.
func (p *Pipeline) FieldTypes() map[string]engine.FieldType {
	return engine.FieldTypes(p.Mappings)
}

func (p *Pipeline) queueByID(id uuid.UUID) *Queue {
	for i := range p.Queues {
		if p.Queues[i].ID == id {
			return &p.Queues[i]
		}
	}
	return nil
}

// Store persists pipeline configuration. Implementations must make
// SavePipeline atomic per pipeline; the registry performs no locking of its
// own beyond what single-call replace semantics require.
type Store interface {
	GetPipeline(ctx context.Context, id uuid.UUID) (*Pipeline, error)
	ListPipelines(ctx context.Context) ([]Pipeline, error)
	SavePipeline(ctx context.Context, p *Pipeline) error
	DeletePipeline(ctx context.Context, id uuid.UUID) error
}

// Registry enforces pipeline invariants over a Store.
type Registry struct {
	store Store
}

// New creates a Registry backed by the given store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// CreatePipeline registers a new, empty pipeline.
func (r *Registry) CreatePipeline(ctx context.Context, name string) (*Pipeline, error) {
	if name == "" {
		return nil, &engine.ConfigError{Errors: []engine.ValidationError{
			{Message: "pipeline name must not be empty"},
		}}
	}
	now := time.Now().UTC()
	p := &Pipeline{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.SavePipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	return p, nil
}

// GetPipeline loads one pipeline.
func (r *Registry) GetPipeline(ctx context.Context, id uuid.UUID) (*Pipeline, error) {
	return r.store.GetPipeline(ctx, id)
}

// ListPipelines returns all pipelines.
func (r *Registry) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	return r.store.ListPipelines(ctx)
}

// DeletePipeline removes a pipeline and everything it owns.
func (r *Registry) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	return r.store.DeletePipeline(ctx, id)
}

// ReplaceMappings swaps the pipeline's mapping set after validating it.
// Conditions whose operator became illegal under a changed field type are
// auto-repaired to the first legal operator for the new type; the type
// change itself is never rejected.
func (r *Registry) ReplaceMappings(ctx context.Context, pipelineID uuid.UUID, mappings []engine.FieldMapping) (*Pipeline, error) {
	p, err := r.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	if vr := engine.ValidateMappings(mappings); !vr.Valid {
		return nil, &engine.ConfigError{Errors: vr.Errors}
	}

	p.Mappings = mappings
	fieldTypes := p.FieldTypes()
	for i := range p.Rules {
		engine.RepairConditions(&p.Rules[i].Group, fieldTypes)
	}

	p.UpdatedAt = time.Now().UTC()
	if err := r.store.SavePipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	return p, nil
}

// UpsertQueue adds or replaces a queue on the pipeline.
func (r *Registry) UpsertQueue(ctx context.Context, pipelineID uuid.UUID, q Queue) (*Pipeline, error) {
	p, err := r.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if q.Name == "" {
		return nil, &engine.ConfigError{Errors: []engine.ValidationError{
			{Message: "queue name must not be empty"},
		}}
	}
	if q.Capacity < 0 {
		return nil, &engine.ConfigError{Errors: []engine.ValidationError{
			{Field: q.Name, Message: "queue capacity must not be negative"},
		}}
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}

	if existing := p.queueByID(q.ID); existing != nil {
		*existing = q
	} else {
		p.Queues = append(p.Queues, q)
	}

	p.UpdatedAt = time.Now().UTC()
	if err := r.store.SavePipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	return p, nil
}

// DeleteQueue removes a queue. A queue still referenced by routing rules is
// rejected; the caller must repoint or delete the dependent rules first.
func (r *Registry) DeleteQueue(ctx context.Context, pipelineID, queueID uuid.UUID) (*Pipeline, error) {
	p, err := r.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if p.queueByID(queueID) == nil {
		return nil, fmt.Errorf("queue %s: %w", queueID, ErrNotFound)
	}

	var dependents []string
	for _, rule := range p.Rules {
		if rule.TargetQueue == queueID {
			dependents = append(dependents, rule.Name)
		}
	}
	if len(dependents) > 0 {
		errs := make([]engine.ValidationError, len(dependents))
		for i, name := range dependents {
			errs[i] = engine.ValidationError{
				Field:   name,
				Message: "rule still targets this queue",
			}
		}
		return nil, &engine.ConfigError{Errors: errs}
	}

	queues := p.Queues[:0]
	for _, q := range p.Queues {
		if q.ID != queueID {
			queues = append(queues, q)
		}
	}
	p.Queues = queues

	p.UpdatedAt = time.Now().UTC()
	if err := r.store.SavePipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	return p, nil
}

// UpsertRule adds or replaces a routing rule after validating it against the
// pipeline schema and checking that its target queue belongs to this
// pipeline. New rules append, preserving the insertion order that breaks
// priority ties.
func (r *Registry) UpsertRule(ctx context.Context, pipelineID uuid.UUID, rule engine.RoutingRule) (*Pipeline, error) {
	p, err := r.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	if vr := r.ValidateRule(p, rule); !vr.Valid {
		return nil, &engine.ConfigError{Errors: vr.Errors}
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	replaced := false
	for i := range p.Rules {
		if p.Rules[i].ID == rule.ID {
			p.Rules[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		p.Rules = append(p.Rules, rule)
	}

	p.UpdatedAt = time.Now().UTC()
	if err := r.store.SavePipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	return p, nil
}

// DeleteRule removes a routing rule.
func (r *Registry) DeleteRule(ctx context.Context, pipelineID, ruleID uuid.UUID) (*Pipeline, error) {
	p, err := r.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	rules := p.Rules[:0]
	found := false
	for _, rule := range p.Rules {
		if rule.ID == ruleID {
			found = true
			continue
		}
		rules = append(rules, rule)
	}
	if !found {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	p.Rules = rules

	p.UpdatedAt = time.Now().UTC()
	if err := r.store.SavePipeline(ctx, p); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	return p, nil
}

// ValidateRule runs the engine's schema validation plus the registry-level
// invariant that the target queue exists on the same pipeline.
func (r *Registry) ValidateRule(p *Pipeline, rule engine.RoutingRule) engine.ValidationResult {
	res := engine.ValidateRule(p.FieldTypes(), rule)
	if p.queueByID(rule.TargetQueue) == nil {
		res.Valid = false
		res.Errors = append(res.Errors, engine.ValidationError{
			Field:   rule.Name,
			Message: "target queue does not belong to this pipeline",
		})
	}
	return res
}
