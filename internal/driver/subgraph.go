package driver

import "github.com/cpgkit/jvmcpg/internal/cpg"

// Subgraph is a transient, read-only view over a selection of nodes and
// the edges whose endpoints both lie in that selection. It is the one
// result type every bulk-retrieval operation in the Driver Contract
// shares: GetMethod, GetProgramStructure, GetNeighbours,
// GetWholeGraph.
type Subgraph struct {
	Nodes []*cpg.Node
	Edges []*cpg.Edge
}

// NodeByID returns the node with the given id, if present.
func (s *Subgraph) NodeByID(id int64) (*cpg.Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// OutEdges returns every edge in the subgraph whose source is id.
func (s *Subgraph) OutEdges(id int64) []*cpg.Edge {
	var out []*cpg.Edge
	for _, e := range s.Edges {
		if e.Src == id {
			out = append(out, e)
		}
	}
	return out
}

// InEdges returns every edge in the subgraph whose destination is id.
func (s *Subgraph) InEdges(id int64) []*cpg.Edge {
	var in []*cpg.Edge
	for _, e := range s.Edges {
		if e.Dst == id {
			in = append(in, e)
		}
	}
	return in
}
