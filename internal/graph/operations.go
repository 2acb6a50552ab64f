package graph

import (
	"regexp"

	"github.com/openshift-hyperfleet/kartograph/internal/kartoerr"
)

// labelPattern is the grammar every label must satisfy before any SQL
// touching it is constructed (spec §6).
var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateLabel rejects labels that don't match labelPattern.
func ValidateLabel(label string) error {
	if !labelPattern.MatchString(label) {
		return &kartoerr.InvalidLabelNameError{Label: label}
	}
	return nil
}

// OpCode is the mutation verb of one line in the JSONL batch input.
type OpCode string

const (
	OpDefine OpCode = "DEFINE"
	OpCreate OpCode = "CREATE"
	OpUpdate OpCode = "UPDATE"
	OpDelete OpCode = "DELETE"
)

// Kind is the entity shape an operation applies to.
type Kind string

const (
	KindNode Kind = "node"
	KindEdge Kind = "edge"
)

// entityType maps the wire Kind to the AGE-facing EntityType.
func (k Kind) entityType() EntityType {
	if k == KindEdge {
		return EntityEdge
	}
	return EntityNode
}

// Operation is one line of the batch mutation input (spec §6). DEFINE
// carries no id; every other op requires one. CREATE requires Label and,
// for edges, StartID/EndID. UPDATE carries SetProperties and/or
// RemoveProperties. DELETE carries only the id.
type Operation struct {
	Op                 OpCode         `json:"op"`
	Type               Kind           `json:"type"`
	ID                 string         `json:"id,omitempty"`
	Label              string         `json:"label,omitempty"`
	Description        string         `json:"description,omitempty"`
	RequiredProperties []string       `json:"required_properties,omitempty"`
	StartID            string         `json:"start_id,omitempty"`
	EndID              string         `json:"end_id,omitempty"`
	SetProperties      map[string]any `json:"set_properties,omitempty"`
	RemoveProperties   []string       `json:"remove_properties,omitempty"`
}

// Batch partitions a flat operation list into the five groups the
// strategy applies in fixed order (spec §4.9). DEFINE operations are
// validated for label shape but otherwise carry no further effect here;
// they exist so a data source can declare schema before loading it,
// matching the original system's batch input format.
type Batch struct {
	CreateNodes []Operation
	CreateEdges []Operation
	DeleteNodes []Operation
	DeleteEdges []Operation
	Updates     []Operation
}

// Partition splits a flat operation list into Batch's five groups,
// validating every label encountered before any SQL is constructed.
func Partition(ops []Operation) (Batch, error) {
	var b Batch
	for _, op := range ops {
		if op.Label != "" {
			if err := ValidateLabel(op.Label); err != nil {
				return Batch{}, err
			}
		}
		switch op.Op {
		case OpDefine:
			continue
		case OpCreate:
			if op.Type == KindEdge {
				b.CreateEdges = append(b.CreateEdges, op)
			} else {
				b.CreateNodes = append(b.CreateNodes, op)
			}
		case OpDelete:
			if op.Type == KindEdge {
				b.DeleteEdges = append(b.DeleteEdges, op)
			} else {
				b.DeleteNodes = append(b.DeleteNodes, op)
			}
		case OpUpdate:
			b.Updates = append(b.Updates, op)
		}
	}
	return b, nil
}
