package model

import (
	"path"

	"github.com/dominikbraun/graph"
)

// modelGraph is the structural (containment) adjacency the Model Graph's
// parent/children/ancestors/is_descendant/reachability queries (spec §4.1)
// run against, built once at Freeze time from the builder's namespace. It
// deliberately does not include transition edges -- those are a separate
// concern the Selector walks via Vertex.Transitions().
type modelGraph struct {
	g    graph.Graph[string, string]
	root string
}

func buildGraph(m *Model) (*modelGraph, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for qualifiedName := range m.namespace {
		_ = g.AddVertex(qualifiedName)
	}
	_ = g.AddVertex("/")
	for qualifiedName, e := range m.namespace {
		var owner string
		switch v := e.(type) {
		case *state:
			owner = v.region
		case *vertex:
			owner = v.region
		case *region:
			owner = parentOfRegion(m, qualifiedName)
		default:
			continue
		}
		if owner == "" {
			owner = "/"
		}
		if owner == qualifiedName {
			continue
		}
		if err := g.AddEdge(owner, qualifiedName); err != nil && err != graph.ErrEdgeAlreadyExists {
			return nil, err
		}
	}
	return &modelGraph{g: g, root: "/"}, nil
}

// parentOfRegion finds the composite (or root) that declared region as one
// of its Regions() -- the inverse of state.regions.
func parentOfRegion(m *Model, regionQualifiedName string) string {
	if regionQualifiedName == path.Join(m.QualifiedName(), ".region") {
		return m.QualifiedName()
	}
	for qualifiedName, e := range m.namespace {
		if s, ok := e.(*state); ok {
			for _, r := range s.regions {
				if r == regionQualifiedName {
					return qualifiedName
				}
			}
		}
	}
	for _, r := range m.regions {
		if r == regionQualifiedName {
			return m.QualifiedName()
		}
	}
	return ""
}

// Parent returns the structural parent of a qualified name (its owning
// region, composite, or "" for the root).
func (mg *modelGraph) Parent(qualifiedName string) string {
	preds, err := mg.g.PredecessorMap()
	if err != nil {
		return ""
	}
	for parent := range preds[qualifiedName] {
		return parent
	}
	return ""
}

// Children returns the direct structural children of a qualified name.
func (mg *modelGraph) Children(qualifiedName string) []string {
	adj, err := mg.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	var out []string
	for child := range adj[qualifiedName] {
		out = append(out, child)
	}
	return out
}

// Ancestors returns every structural ancestor of qualifiedName, root-first
// (spec §4.1: "ancestors(v) (root-first)").
func (mg *modelGraph) Ancestors(qualifiedName string) []string {
	var chain []string
	current := qualifiedName
	for {
		parent := mg.Parent(current)
		if parent == "" {
			break
		}
		chain = append(chain, parent)
		current = parent
	}
	// chain is built leaf-upward; reverse for root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Reachable reports whether qualifiedName can be reached from the root by
// following structural edges -- used by Freeze to raise UnreachableState.
func (mg *modelGraph) Reachable(qualifiedName string) bool {
	if qualifiedName == mg.root {
		return true
	}
	_, err := graph.ShortestPath(mg.g, mg.root, qualifiedName)
	return err == nil
}

// IsDescendant reports whether target descends from ancestor via
// structural (containment) edges.
func (mg *modelGraph) IsDescendant(ancestor, target string) bool {
	for _, a := range mg.Ancestors(target) {
		if a == ancestor {
			return true
		}
	}
	return false
}
