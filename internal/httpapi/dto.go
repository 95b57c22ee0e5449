package httpapi

import (
	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver"
)

// NodeDTO is the wire form of one node: the shared header plus a flat
// map of the non-empty schema properties, "(id, label,
// {properties})". Shared by the HTTP and MCP surfaces so both render
// identical subgraphs.
type NodeDTO struct {
	ID            int64             `json:"id"`
	Label         string            `json:"label"`
	Order         int               `json:"order"`
	ArgumentIndex int               `json:"argumentIndex"`
	LineNumber    int               `json:"lineNumber"`
	ColumnNumber  int               `json:"columnNumber"`
	Code          string            `json:"code,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// EdgeDTO is the wire form of one edge: "(src_id, dst_id, label)".
type EdgeDTO struct {
	Src   int64  `json:"src"`
	Dst   int64  `json:"dst"`
	Label string `json:"label"`
}

// SubgraphDTO is the wire form of a retrieval result.
type SubgraphDTO struct {
	Nodes []NodeDTO `json:"nodes"`
	Edges []EdgeDTO `json:"edges"`
}

// ToSubgraphDTO converts a driver result for serialization. Record
// order is not significant, so node and edge order simply follow the
// driver's.
func ToSubgraphDTO(sub *driver.Subgraph) SubgraphDTO {
	dto := SubgraphDTO{
		Nodes: make([]NodeDTO, 0, len(sub.Nodes)),
		Edges: make([]EdgeDTO, 0, len(sub.Edges)),
	}
	for _, n := range sub.Nodes {
		dto.Nodes = append(dto.Nodes, toNodeDTO(n))
	}
	for _, e := range sub.Edges {
		dto.Edges = append(dto.Edges, EdgeDTO{Src: e.Src, Dst: e.Dst, Label: string(e.Label)})
	}
	return dto
}

func toNodeDTO(n *cpg.Node) NodeDTO {
	props := map[string]string{}
	put := func(key, value string) {
		if value != "" {
			props[key] = value
		}
	}
	put("name", n.Props.Name)
	put("fullName", n.Props.FullName)
	put("signature", n.Props.Signature)
	put("filename", n.Props.Filename)
	put("hash", n.Props.Hash)
	put("astParentFullName", n.Props.AstParentFullName)
	put("astParentType", n.Props.AstParentType)
	put("typeFullName", n.Props.TypeFullName)
	put("methodFullName", n.Props.MethodFullName)
	put("dispatchType", n.Props.DispatchType)
	put("evaluationStrategy", n.Props.EvaluationStrategy)
	put("modifierType", n.Props.ModifierType)
	put("language", n.Props.Language)
	put("version", n.Props.Version)
	for k, v := range n.Props.Extra {
		put(k, v)
	}
	if len(props) == 0 {
		props = nil
	}
	return NodeDTO{
		ID:            n.ID,
		Label:         string(n.Kind),
		Order:         n.Order,
		ArgumentIndex: n.ArgumentIndex,
		LineNumber:    n.LineNumber,
		ColumnNumber:  n.ColumnNumber,
		Code:          n.Code,
		Properties:    props,
	}
}
