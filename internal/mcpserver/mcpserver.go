// Package mcpserver exposes the Driver Contract's bulk-retrieval
// operations as MCP tools, so LLM-driven clients can read a persisted
// CPG over the HTTP API's retrieval operations, all but the whole-graph
// dump. The protocol
// endpoint mounts on the main gin router alongside the REST routes.
package mcpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/cpgkit/jvmcpg/internal/cpg"
	"github.com/cpgkit/jvmcpg/internal/driver"
	"github.com/cpgkit/jvmcpg/internal/httpapi"
)

// Server wraps an MCP server over one opened Driver.
type Server struct {
	driver driver.Driver
	logger *zap.Logger
	mcp    *mcp.Server
}

// New constructs the server and registers the retrieval tools.
func New(d driver.Driver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		driver: d,
		logger: logger,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "jvmcpg",
			Version: "1.0.0",
		}, nil),
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_method",
		Description: "Retrieve a method's CPG subgraph by fullName and signature, optionally with its whole body closure.",
	}, s.getMethod)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_program_structure",
		Description: "Retrieve the FILE and NAMESPACE_BLOCK program-structure subgraph.",
	}, s.getProgramStructure)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_neighbours",
		Description: "Retrieve a node's one-hop in- and out-neighbourhood by node id.",
	}, s.getNeighbours)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_vertex_ids",
		Description: "List the node ids present in an id range.",
	}, s.getVertexIDs)

	return s
}

// SetupHTTPRoutes mounts the MCP streamable-HTTP endpoint at /mcp on
// router, alongside the REST API.
func (s *Server) SetupHTTPRoutes(router *gin.Engine) {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	router.Any("/mcp", gin.WrapH(handler))
}

// RunStdio serves the MCP protocol over stdin/stdout until ctx ends.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type getMethodInput struct {
	FullName    string `json:"fullName"`
	Signature   string `json:"signature"`
	IncludeBody bool   `json:"includeBody"`
}

func (s *Server) getMethod(ctx context.Context, _ *mcp.CallToolRequest, in getMethodInput) (*mcp.CallToolResult, httpapi.SubgraphDTO, error) {
	sub, err := s.driver.GetMethod(ctx, in.FullName, in.Signature, in.IncludeBody)
	if err != nil {
		return nil, httpapi.SubgraphDTO{}, err
	}
	return nil, httpapi.ToSubgraphDTO(sub), nil
}

type emptyInput struct{}

func (s *Server) getProgramStructure(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, httpapi.SubgraphDTO, error) {
	sub, err := s.driver.GetProgramStructure(ctx)
	if err != nil {
		return nil, httpapi.SubgraphDTO{}, err
	}
	return nil, httpapi.ToSubgraphDTO(sub), nil
}

type getNeighboursInput struct {
	ID int64 `json:"id"`
}

func (s *Server) getNeighbours(ctx context.Context, _ *mcp.CallToolRequest, in getNeighboursInput) (*mcp.CallToolResult, httpapi.SubgraphDTO, error) {
	sub, err := s.driver.GetNeighbours(ctx, &cpg.Node{ID: in.ID})
	if err != nil {
		return nil, httpapi.SubgraphDTO{}, err
	}
	return nil, httpapi.ToSubgraphDTO(sub), nil
}

type getVertexIDsInput struct {
	Lo int64 `json:"lo"`
	Hi int64 `json:"hi"`
}

type vertexIDsOutput struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) getVertexIDs(ctx context.Context, _ *mcp.CallToolRequest, in getVertexIDsInput) (*mcp.CallToolResult, vertexIDsOutput, error) {
	ids, err := s.driver.GetVertexIDs(ctx, in.Lo, in.Hi)
	if err != nil {
		return nil, vertexIDsOutput{}, err
	}
	return nil, vertexIDsOutput{IDs: ids}, nil
}
