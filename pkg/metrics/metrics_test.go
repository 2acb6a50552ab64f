package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestOutboxProcessedIncrements(t *testing.T) {
	OutboxProcessed.Reset()
	OutboxProcessed.WithLabelValues("GroupCreated").Inc()

	m := &dto.Metric{}
	if err := OutboxProcessed.WithLabelValues("GroupCreated").Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.GetCounter().GetValue() != 1 {
		t.Fatalf("expected counter value 1, got %v", m.GetCounter().GetValue())
	}
}

func TestRegistryGatherIncludesCollectors(t *testing.T) {
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "kartograph_graph_batch_operations_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected kartograph_graph_batch_operations_total to be registered")
	}
}
