package graph

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/openshift-hyperfleet/kartograph/pkg/logger"
	"github.com/openshift-hyperfleet/kartograph/pkg/metrics"
)

// DefaultBatchSize bounds how many logical ids a single delete statement
// binds as a parameter array.
const DefaultBatchSize = 1000

// Result reports what Apply did for a batch whose every step succeeded:
// OperationsApplied is the total number of rows deleted, upserted or
// updated, and Batches is the number of non-empty operation groups
// (delete-edges, delete-nodes, create-nodes, create-edges, updates) that
// ran. Result carries no error: on failure Apply returns the zero Result
// and a non-nil error, and the caller's transaction wrapper is what
// performs the rollback.
type Result struct {
	OperationsApplied int
	Batches           int
}

// Strategy is the bulk-loading strategy (C9): single entry point
// Apply(ctx, tx, graphName, operations). It performs no internal
// parallelism — one caller, one transaction, one batch (spec §5); running
// multiple batches concurrently is the caller's responsibility, made safe
// by per-label advisory locks.
type Strategy struct {
	staging   *StagingManager
	batchSize int
	log       *logger.Logger
}

// NewStrategy returns a Strategy. A batchSize of 0 uses DefaultBatchSize.
func NewStrategy(batchSize int, log *logger.Logger) *Strategy {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Strategy{staging: NewStagingManager(), batchSize: batchSize, log: log}
}

// Apply executes one batch inside tx in the fixed order spec §4.9
// requires: advisory locks, delete-edges, delete-nodes, create-nodes,
// create-edges, updates. Any error aborts; the caller's transaction
// wrapper rolls back so no partial batch is ever visible.
func (s *Strategy) Apply(ctx context.Context, tx *sql.Tx, graphName string, ops []Operation) (Result, error) {
	batch, err := Partition(ops)
	if err != nil {
		return Result{}, err
	}

	if err := s.acquireCreateLocks(ctx, tx, graphName, batch); err != nil {
		return Result{}, err
	}

	total := 0
	applied := 0

	if len(batch.DeleteEdges) > 0 {
		n, err := s.executeDeletes(ctx, tx, graphName, batch.DeleteEdges, EntityEdge)
		if err != nil {
			return Result{}, err
		}
		applied += n
		total++
	}
	if len(batch.DeleteNodes) > 0 {
		n, err := s.executeDeletes(ctx, tx, graphName, batch.DeleteNodes, EntityNode)
		if err != nil {
			return Result{}, err
		}
		applied += n
		total++
	}

	if len(batch.CreateNodes) > 0 {
		n, err := s.executeCreates(ctx, tx, graphName, batch.CreateNodes, EntityNode)
		if err != nil {
			return Result{}, err
		}
		applied += n
		total++
	}
	if len(batch.CreateEdges) > 0 {
		n, err := s.executeCreates(ctx, tx, graphName, batch.CreateEdges, EntityEdge)
		if err != nil {
			return Result{}, err
		}
		applied += n
		total++
	}

	if len(batch.Updates) > 0 {
		n, err := s.executeUpdates(ctx, tx, graphName, batch.Updates)
		if err != nil {
			return Result{}, err
		}
		applied += n
		total++
	}

	return Result{OperationsApplied: applied, Batches: total}, nil
}

// acquireCreateLocks locks every label touched by a create, nodes first
// then edges, sorting keys within each group to avoid deadlocking against
// another concurrent batch that touches an overlapping label set in a
// different order.
func (s *Strategy) acquireCreateLocks(ctx context.Context, tx *sql.Tx, graphName string, batch Batch) error {
	nodeLabels := distinctLabels(batch.CreateNodes)
	edgeLabels := distinctLabels(batch.CreateEdges)
	sort.Strings(nodeLabels)
	sort.Strings(edgeLabels)

	for _, label := range nodeLabels {
		if err := AcquireAdvisoryLock(ctx, tx, graphName, label); err != nil {
			return err
		}
	}
	for _, label := range edgeLabels {
		if err := AcquireAdvisoryLock(ctx, tx, graphName, label); err != nil {
			return err
		}
	}
	return nil
}

func distinctLabels(ops []Operation) []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, op := range ops {
		if op.Label == "" {
			continue
		}
		if _, ok := seen[op.Label]; ok {
			continue
		}
		seen[op.Label] = struct{}{}
		labels = append(labels, op.Label)
	}
	return labels
}

func (s *Strategy) executeDeletes(ctx context.Context, tx *sql.Tx, graphName string, ops []Operation, et EntityType) (int, error) {
	opKind := "delete_node"
	if et == EntityEdge {
		opKind = "delete_edge"
	}

	total := 0
	for i := 0; i < len(ops); i += s.batchSize {
		end := i + s.batchSize
		if end > len(ops) {
			end = len(ops)
		}
		chunk := ops[i:end]

		ids := make([]string, len(chunk))
		for j, op := range chunk {
			if op.ID == "" {
				return 0, fmt.Errorf("graph: malformed delete operation missing id")
			}
			ids[j] = op.ID
		}

		var (
			n   int64
			err error
		)
		if et == EntityNode {
			n, err = DeleteNodesWithDetach(ctx, tx, graphName, ids)
		} else {
			n, err = DeleteEdges(ctx, tx, graphName, ids)
		}
		if err != nil {
			return 0, err
		}
		metrics.GraphBatchOperations.WithLabelValues(opKind).Add(float64(n))
		total += int(n)
	}
	return total, nil
}

// executeCreates stages, validates, pre-creates labels/indexes, and
// upserts one entity kind's create operations.
func (s *Strategy) executeCreates(ctx context.Context, tx *sql.Tx, graphName string, ops []Operation, et EntityType) (int, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return 0, err
	}

	var table string
	if et == EntityNode {
		table, err = s.staging.CreateNodeStagingTable(ctx, tx, sessionID)
		if err != nil {
			return 0, err
		}
		if _, err = s.staging.CopyNodesToStaging(ctx, tx, table, ops, graphName); err != nil {
			return 0, err
		}
	} else {
		table, err = s.staging.CreateEdgeStagingTable(ctx, tx, sessionID)
		if err != nil {
			return 0, err
		}
		if _, err = s.staging.CopyEdgesToStaging(ctx, tx, table, ops, graphName); err != nil {
			return 0, err
		}
	}

	if err := s.staging.CreateLabelIndex(ctx, tx, table); err != nil {
		return 0, err
	}

	if et == EntityEdge {
		if err := s.staging.CreateEdgeResolutionIndexes(ctx, tx, table); err != nil {
			return 0, err
		}
		lookupTable, _, err := s.staging.CreateGraphIDLookupTable(ctx, tx, graphName, sessionID)
		if err != nil {
			return 0, err
		}
		if err := s.staging.ResolveEdgeGraphIDs(ctx, tx, table, lookupTable); err != nil {
			return 0, err
		}
		if resolved, err := CountResolvedEdges(ctx, tx, table); err != nil {
			return 0, err
		} else if s.log != nil {
			s.log.WithField("resolved_edges", resolved).Debug("edge graphid resolution probe")
		}
		if err := s.staging.CheckForOrphanedEdges(ctx, tx, table); err != nil {
			return 0, err
		}
	}

	entityKind := "node"
	if et == EntityEdge {
		entityKind = "edge"
	}
	if err := s.staging.CheckForDuplicateIDs(ctx, tx, table, entityKind); err != nil {
		return 0, err
	}

	labels, err := s.staging.FetchDistinctLabels(ctx, tx, table)
	if err != nil {
		return 0, err
	}

	newLabels, err := s.preCreateLabelsAndIndexes(ctx, tx, graphName, labels, et)
	if err != nil {
		return 0, err
	}

	opKind := "create_node"
	if et == EntityEdge {
		opKind = "create_edge"
	}

	applied := 0
	for _, label := range labels {
		info, err := GetLabelInfo(ctx, tx, graphName, label)
		if err != nil {
			return 0, err
		}
		if info == nil {
			return 0, fmt.Errorf("graph: label %q not found in graph %q after creation", label, graphName)
		}

		_, isNew := newLabels[label]
		res, err := ExecuteLabelUpsert(ctx, tx, graphName, label, info.LabelID, info.SeqName, table, et, isNew)
		if err != nil {
			return 0, err
		}
		n := res.Updated + res.Inserted
		metrics.GraphBatchOperations.WithLabelValues(opKind).Add(float64(n))
		applied += int(n)
	}

	return applied, nil
}

func (s *Strategy) preCreateLabelsAndIndexes(ctx context.Context, tx *sql.Tx, graphName string, labels []string, et EntityType) (map[string]struct{}, error) {
	existing, err := GetExistingLabels(ctx, tx, graphName)
	if err != nil {
		return nil, err
	}

	newLabels := make(map[string]struct{})
	for _, label := range labels {
		if _, ok := existing[label]; !ok {
			newLabels[label] = struct{}{}
		}
	}

	for label := range newLabels {
		if err := CreateLabel(ctx, tx, graphName, label, et); err != nil {
			return nil, err
		}
	}
	for label := range newLabels {
		if err := CreateLabelIndexes(ctx, tx, graphName, label, et); err != nil {
			return nil, err
		}
	}
	return newLabels, nil
}

func (s *Strategy) executeUpdates(ctx context.Context, tx *sql.Tx, graphName string, ops []Operation) (int, error) {
	applied := 0
	for _, op := range ops {
		if op.ID == "" {
			return 0, fmt.Errorf("graph: malformed update operation missing id")
		}

		table, err := FindEntityTable(ctx, tx, graphName, op.ID, op.Type.entityType())
		if err != nil {
			return 0, err
		}
		if table == "" {
			continue
		}

		if len(op.SetProperties) > 0 {
			if err := UpdateProperties(ctx, tx, table, op.ID, op.SetProperties); err != nil {
				return 0, err
			}
		}
		if len(op.RemoveProperties) > 0 {
			if err := RemoveProperties(ctx, tx, table, op.ID, op.RemoveProperties); err != nil {
				return 0, err
			}
		}
		metrics.GraphBatchOperations.WithLabelValues("update").Inc()
		applied++
	}
	return applied, nil
}

// newSessionID mirrors the bulk-loading strategy's own session id scheme:
// a truncated random UUID used to namespace a batch's staging tables.
func newSessionID() (string, error) {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:16], nil
}
