// Package neo4jgraph implements the GraphStore adapter against Neo4j,
// using github.com/neo4j/neo4j-go-driver/v5's documented session/
// ExecuteRead pattern for bounded-depth neighbor traversal.
package neo4jgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/connexus-ai/ragcore/internal/retriever"
)

// Store implements retriever.GraphStore by traversing chunk-linking
// edges in a Neo4j knowledge graph.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New wraps an already-constructed driver. Call driver.VerifyConnectivity
// at startup; this constructor does not dial.
func New(driver neo4j.DriverWithContext, database string) *Store {
	if database == "" {
		database = "neo4j"
	}
	return &Store{driver: driver, database: database}
}

// NewDriver opens a Neo4j driver using basic auth, grounded on the
// driver package's standard NewDriverWithContext + basic-auth helper.
func NewDriver(uri, username, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph.NewDriver: %w", err)
	}
	return driver, nil
}

var _ retriever.GraphStore = (*Store)(nil)

// GetNeighbors traverses outgoing, incoming or both edge directions
// from nodeID up to opts.Depth hops, optionally narrowed by edge/node
// type and a minimum edge weight.
func (s *Store) GetNeighbors(ctx context.Context, nodeID string, opts retriever.NeighborOptions) ([]retriever.Neighbor, error) {
	depth := opts.Depth
	if depth <= 0 {
		depth = 1
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query, params := buildNeighborQuery(nodeID, depth, opts.Direction, opts.EdgeTypes, opts.NodeTypes, opts.MinWeight, limit)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var neighbors []retriever.Neighbor
		for records.Next(ctx) {
			rec := records.Record()
			id, _ := rec.Get("id")
			weight, _ := rec.Get("weight")
			hop, _ := rec.Get("hop")
			neighbors = append(neighbors, retriever.Neighbor{
				NodeID:     fmt.Sprintf("%v", id),
				EdgeWeight: toFloat(weight),
				Depth:      int(toFloat(hop)),
			})
		}
		return neighbors, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jgraph.GetNeighbors: %w", err)
	}
	return result.([]retriever.Neighbor), nil
}

func buildNeighborQuery(nodeID string, depth int, direction retriever.NeighborDirection, edgeTypes, nodeTypes []string, minWeight float64, limit int) (string, map[string]any) {
	pattern := fmt.Sprintf("-[r%s*1..%d]-", relTypeFilter(edgeTypes), depth)
	switch direction {
	case retriever.DirectionOutgoing:
		pattern = fmt.Sprintf("-[r%s*1..%d]->", relTypeFilter(edgeTypes), depth)
	case retriever.DirectionIncoming:
		pattern = fmt.Sprintf("<-[r%s*1..%d]-", relTypeFilter(edgeTypes), depth)
	}

	nodeFilter := ""
	if len(nodeTypes) > 0 {
		nodeFilter = ":" + joinLabels(nodeTypes)
	}

	query := fmt.Sprintf(`
		MATCH (start {id: $nodeID})%s(neighbor%s)
		WHERE all(rel IN r WHERE coalesce(rel.weight, 1.0) >= $minWeight)
		RETURN DISTINCT neighbor.id AS id,
			reduce(w = 1.0, rel IN r | w * coalesce(rel.weight, 1.0)) AS weight,
			length(r) AS hop
		ORDER BY weight DESC
		LIMIT $limit`, pattern, nodeFilter)

	return query, map[string]any{
		"nodeID":    nodeID,
		"minWeight": minWeight,
		"limit":     limit,
	}
}

func relTypeFilter(edgeTypes []string) string {
	if len(edgeTypes) == 0 {
		return ""
	}
	return ":" + joinLabels(edgeTypes)
}

func joinLabels(labels []string) string {
	out := labels[0]
	for _, l := range labels[1:] {
		out += "|" + l
	}
	return out
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
