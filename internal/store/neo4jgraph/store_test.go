package neo4jgraph

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/connexus-ai/ragcore/internal/retriever"
)

func getTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set, skipping neo4jgraph integration test")
	}
	username := os.Getenv("NEO4J_USERNAME")
	password := os.Getenv("NEO4J_PASSWORD")
	driver, err := NewDriver(uri, username, password)
	if err != nil {
		t.Fatalf("NewDriver() error: %v", err)
	}
	t.Cleanup(func() { driver.Close(context.Background()) })
	return New(driver, "")
}

func TestGetNeighbors_UnknownNodeReturnsEmpty(t *testing.T) {
	s := getTestStore(t)
	neighbors, err := s.GetNeighbors(context.Background(), "nonexistent-node-id", retriever.NeighborOptions{Depth: 1})
	if err != nil {
		t.Fatalf("GetNeighbors() error: %v", err)
	}
	if len(neighbors) != 0 {
		t.Errorf("expected no neighbors for an unknown node, got %d", len(neighbors))
	}
}

func TestBuildNeighborQuery_OutgoingDirection(t *testing.T) {
	query, params := buildNeighborQuery("doc-1", 2, retriever.DirectionOutgoing, nil, nil, 0.1, 10)
	if !strings.Contains(query, "*1..2]->") {
		t.Errorf("expected an outgoing variable-length pattern, got: %s", query)
	}
	if params["nodeID"] != "doc-1" || params["minWeight"] != 0.1 || params["limit"] != 10 {
		t.Errorf("unexpected params: %+v", params)
	}
}

func TestBuildNeighborQuery_IncomingDirection(t *testing.T) {
	query, _ := buildNeighborQuery("doc-1", 1, retriever.DirectionIncoming, nil, nil, 0, 50)
	if !strings.Contains(query, "<-[r*1..1]-") {
		t.Errorf("expected an incoming pattern, got: %s", query)
	}
}

func TestBuildNeighborQuery_BothDirectionIsUndirected(t *testing.T) {
	query, _ := buildNeighborQuery("doc-1", 1, retriever.DirectionBoth, nil, nil, 0, 50)
	if strings.Contains(query, "->") || strings.Contains(query, "<-") {
		t.Errorf("expected an undirected pattern for DirectionBoth, got: %s", query)
	}
}

func TestBuildNeighborQuery_EdgeAndNodeTypeFilters(t *testing.T) {
	query, _ := buildNeighborQuery("doc-1", 1, retriever.DirectionOutgoing, []string{"CITES", "LINKS_TO"}, []string{"Chunk"}, 0, 50)
	if !strings.Contains(query, ":CITES|LINKS_TO") {
		t.Errorf("expected edge-type filter in query, got: %s", query)
	}
	if !strings.Contains(query, "(neighbor:Chunk)") {
		t.Errorf("expected node-type filter in query, got: %s", query)
	}
}

func TestJoinLabels_SingleAndMultiple(t *testing.T) {
	if got := joinLabels([]string{"A"}); got != "A" {
		t.Errorf("joinLabels single = %q, want %q", got, "A")
	}
	if got := joinLabels([]string{"A", "B", "C"}); got != "A|B|C" {
		t.Errorf("joinLabels multiple = %q, want %q", got, "A|B|C")
	}
}

func TestRelTypeFilter_EmptyReturnsUnfiltered(t *testing.T) {
	if got := relTypeFilter(nil); got != "" {
		t.Errorf("relTypeFilter(nil) = %q, want empty", got)
	}
}

func TestToFloat_HandlesNeo4jNumericTypes(t *testing.T) {
	if got := toFloat(int64(3)); got != 3 {
		t.Errorf("toFloat(int64) = %v, want 3", got)
	}
	if got := toFloat(2.5); got != 2.5 {
		t.Errorf("toFloat(float64) = %v, want 2.5", got)
	}
	if got := toFloat("not a number"); got != 0 {
		t.Errorf("toFloat(unexpected type) = %v, want 0", got)
	}
}
