// Package policytest provides an in-memory policy.Engine for use in
// translator and worker tests. It is not a SpiceDB client — a real gRPC
// implementation is out of scope for this core — but it enforces the
// same filter-narrowing and TOUCH (idempotent write) semantics so tests
// exercise realistic behavior.
package policytest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/openshift-hyperfleet/kartograph/internal/policy"
)

// Engine is a concurrency-safe, in-process relationship store.
type Engine struct {
	mu     sync.Mutex
	tuples map[string]policy.Tuple // key: canonical tuple string, for TOUCH semantics
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{tuples: make(map[string]policy.Tuple)}
}

func key(t policy.Tuple) string {
	return fmt.Sprintf("%s#%s@%s", t.Resource, t.Relation, t.Subject)
}

func (e *Engine) WriteRelationship(_ context.Context, t policy.Tuple) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tuples[key(t)] = t // TOUCH: re-writing an existing tuple is a no-op change
	return nil
}

func (e *Engine) WriteRelationships(ctx context.Context, ts []policy.Tuple) error {
	for _, t := range ts {
		if err := e.WriteRelationship(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) DeleteRelationship(_ context.Context, t policy.Tuple) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tuples, key(t)) // deleting an absent tuple is not an error (idempotent)
	return nil
}

func (e *Engine) DeleteRelationships(ctx context.Context, ts []policy.Tuple) error {
	for _, t := range ts {
		if err := e.DeleteRelationship(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) DeleteRelationshipsByFilter(_ context.Context, f policy.RelationshipFilter) error {
	if !f.HasNarrowingField() {
		return fmt.Errorf("policytest: filter on resource_type %q alone would delete every relationship of that type", f.ResourceType)
	}
	if f.SubjectID != "" && f.SubjectType == "" {
		return fmt.Errorf("policytest: subject_id filter requires subject_type")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for k, t := range e.tuples {
		if matches(t, f) {
			delete(e.tuples, k)
		}
	}
	return nil
}

func matches(t policy.Tuple, f policy.RelationshipFilter) bool {
	if t.Resource.Type != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && t.Resource.ID != f.ResourceID {
		return false
	}
	if f.Relation != "" && t.Relation != f.Relation {
		return false
	}
	if f.SubjectType != "" && t.Subject.Type != f.SubjectType {
		return false
	}
	if f.SubjectID != "" && t.Subject.ID != f.SubjectID {
		return false
	}
	return true
}

func (e *Engine) CheckPermission(_ context.Context, resource policy.Relation, permission string, subject policy.Relation) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.tuples {
		if t.Resource == resource && t.Relation == permission && t.Subject.Relation == subject {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) BulkCheckPermission(ctx context.Context, checks []policy.PermissionCheck) ([]policy.PermissionResult, error) {
	results := make([]policy.PermissionResult, len(checks))
	for i, c := range checks {
		ok, err := e.CheckPermission(ctx, c.Resource, c.Permission, c.Subject)
		if err != nil {
			return nil, err
		}
		results[i] = policy.PermissionResult{Check: c, Permitted: ok}
	}
	return results, nil
}

func (e *Engine) LookupSubjects(_ context.Context, resource policy.Relation, permission, subjectType string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, t := range e.tuples {
		if t.Resource == resource && t.Relation == permission && t.Subject.Type == subjectType {
			out = append(out, t.Subject.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) LookupResources(_ context.Context, resourceType, permission string, subject policy.Relation) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, t := range e.tuples {
		if t.Resource.Type == resourceType && t.Relation == permission && t.Subject.Relation == subject {
			out = append(out, t.Resource.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *Engine) ReadRelationships(_ context.Context, f policy.RelationshipFilter) ([]policy.Tuple, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []policy.Tuple
	for _, t := range e.tuples {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out, nil
}

// Snapshot returns all current tuples, sorted, for test assertions.
func (e *Engine) Snapshot() []policy.Tuple {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]policy.Tuple, 0, len(e.tuples))
	for _, t := range e.tuples {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

var _ policy.Engine = (*Engine)(nil)
