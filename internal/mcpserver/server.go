// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the notebook's tools and resources for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tom-jordan23/cooking-mcp/internal/resources"
	"github.com/tom-jordan23/cooking-mcp/internal/tools"
)

// mcpActor is the commit attribution for mutations arriving over stdio.
const mcpActor = "mcp_server"

// Server wraps the MCP server with the notebook tools and resources.
type Server struct {
	mcp       *server.MCPServer
	tools     *tools.Router
	resources *resources.Router
}

// New creates an MCP server with every notebook tool and resource
// registered. Name and version are what the handshake advertises.
func New(name, version string, toolRouter *tools.Router, resourceRouter *resources.Router) *Server {
	s := &Server{tools: toolRouter, resources: resourceRouter}

	s.mcp = server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	// Tool schemas live in the tools package; register them as-is so the
	// stdio surface and the HTTP bridge validate against the same contract.
	for _, d := range toolRouter.List() {
		schema, _ := json.Marshal(d.InputSchema)
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(string(d.Name), d.Description, schema),
			s.toolHandler(d.Name),
		)
	}

	s.mcp.AddResource(mcp.NewResource("lab://entries", "Notebook Entries",
		mcp.WithResourceDescription("Paginated list of notebook entries, most recently updated first."),
		mcp.WithMIMEType("application/json"),
	), s.readResource)

	s.mcp.AddResource(mcp.NewResource("lab://search", "Search Notebook",
		mcp.WithResourceDescription("Full-text search over titles, protocols, tags, and cooking methods."),
		mcp.WithMIMEType("application/json"),
	), s.readResource)

	s.mcp.AddResource(mcp.NewResource("lab://entry-format", "Entry Format Contract",
		mcp.WithResourceDescription("Canonical markdown format of entries mirrored to git."),
		mcp.WithMIMEType("text/markdown"),
	), s.readEntryFormatResource)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("lab://entry/{id}", "Notebook Entry",
		mcp.WithTemplateDescription("One notebook entry as JSON, addressed by id."),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readResource)

	s.mcp.AddResourceTemplate(mcp.NewResourceTemplate("lab://attachments/{id}", "Entry Attachments",
		mcp.WithTemplateDescription("Attachment listing for one notebook entry."),
		mcp.WithTemplateMIMEType("application/json"),
	), s.readResource)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolHandler adapts one named tool to the mcp-go handler signature. Tool
// failures come back as error results, not protocol errors.
func (s *Server) toolHandler(name tools.Name) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res := s.tools.Call(ctx, tools.Request{
			Name:  name,
			Args:  args,
			Actor: mcpActor,
		})
		if res.IsError {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", res.ErrorCode(), res.ErrorMessage())), nil
		}

		out, _ := json.MarshalIndent(res.Payload(), "", "  ")
		return mcp.NewToolResultText(string(out)), nil
	}
}

func (s *Server) readResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	content, err := s.resources.Read(ctx, req.Params.URI)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      content.URI,
			MIMEType: content.MIMEType,
			Text:     content.Text,
		},
	}, nil
}

func (s *Server) readEntryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "lab://entry-format",
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}
