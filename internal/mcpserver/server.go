// Package mcpserver exposes the context bank operations as MCP tools over
// stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/context-bank/internal/contextbank"
	"github.com/starford/context-bank/internal/models"
)

// Server identity reported during initialization.
const (
	Name    = "context-bank-server"
	Version = "1.0.0"
)

// Tool names.
const (
	ToolListFiles  = contextbank.OpListFiles
	ToolGetContent = contextbank.OpGetContent
	ToolSearch     = contextbank.OpSearch
)

// Service is the set of operations the tools delegate to.
// *contextbank.Service satisfies it.
type Service interface {
	ListMarkdownFiles(ctx context.Context, req contextbank.ListRequest) (*models.FileList, error)
	GetFileContent(ctx context.Context, req contextbank.ContentRequest) (*models.FileContent, error)
	SearchMarkdownContent(ctx context.Context, req contextbank.SearchRequest) (*models.SearchResponse, error)
}

// Server wraps the MCP server with the context bank tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all tools registered.
func New(svc Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool(ToolListFiles,
		mcp.WithDescription("List all markdown files in a git repository branch. "+
			"Hidden files and directories are skipped."),
		mcp.WithReadOnlyHintAnnotation(true),
		repositoryParam(),
		branchParam(),
		mcp.WithString("path_filter",
			mcp.Description("Optional filter: a directory prefix ending in '/', a wildcard pattern with '*', "+
				"or a substring. See the "+FilterSyntaxURI+" resource."),
		),
		tokenParam(),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool(ToolGetContent,
		mcp.WithDescription("Get the full content of one markdown file from a git repository branch."),
		mcp.WithReadOnlyHintAnnotation(true),
		repositoryParam(),
		mcp.WithString("file_path", mcp.Required(),
			mcp.Description("Path of the file relative to the repository root (e.g. docs/guide.md)"),
		),
		branchParam(),
		tokenParam(),
	), s.getContent)

	s.mcp.AddTool(mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search the markdown files of a git repository branch for lines containing "+
			"a literal term. Returns matching lines with line numbers."),
		mcp.WithReadOnlyHintAnnotation(true),
		repositoryParam(),
		mcp.WithString("search_term", mcp.Required(),
			mcp.Description("Text to look for. Matched literally, not as a regular expression."),
		),
		branchParam(),
		mcp.WithBoolean("case_sensitive",
			mcp.DefaultBool(false),
			mcp.Description("Match case exactly (default false)"),
		),
		tokenParam(),
	), s.search)

	s.mcp.AddResource(
		mcp.NewResource(FilterSyntaxURI, "Path filter syntax",
			mcp.WithResourceDescription("How path_filter values select files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFilterSyntax,
	)

	return s
}

func repositoryParam() mcp.ToolOption {
	return mcp.WithString("repository_url",
		mcp.Description("Git repository URL (HTTPS or SSH). Defaults to the configured repository."),
	)
}

func branchParam() mcp.ToolOption {
	return mcp.WithString("branch",
		mcp.DefaultString(contextbank.DefaultBranch),
		mcp.Description("Branch to read (default main)"),
	)
}

func tokenParam() mcp.ToolOption {
	return mcp.WithString("access_token",
		mcp.Description("Access token for private repositories. Defaults to the configured token."),
	)
}

// ServeStdio serves JSON-RPC over in and out until ctx is done or in is
// exhausted. Protocol errors are logged to logger.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// HTTPHandler returns a streamable HTTP handler for the server.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.ListMarkdownFiles(ctx, contextbank.ListRequest{
		RepositoryURL: req.GetString("repository_url", ""),
		Branch:        req.GetString("branch", ""),
		PathFilter:    req.GetString("path_filter", ""),
		AccessToken:   req.GetString("access_token", ""),
	})
	return result(res, err)
}

func (s *Server) getContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("file_path")
	if err != nil {
		return errorResult(err), nil
	}
	res, err := s.svc.GetFileContent(ctx, contextbank.ContentRequest{
		RepositoryURL: req.GetString("repository_url", ""),
		Branch:        req.GetString("branch", ""),
		FilePath:      path,
		AccessToken:   req.GetString("access_token", ""),
	})
	return result(res, err)
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	term, err := req.RequireString("search_term")
	if err != nil {
		return errorResult(err), nil
	}
	res, err := s.svc.SearchMarkdownContent(ctx, contextbank.SearchRequest{
		RepositoryURL: req.GetString("repository_url", ""),
		Branch:        req.GetString("branch", ""),
		SearchTerm:    term,
		CaseSensitive: req.GetBool("case_sensitive", false),
		AccessToken:   req.GetString("access_token", ""),
	})
	return result(res, err)
}

func (s *Server) readFilterSyntax(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FilterSyntaxURI,
			MIMEType: "text/markdown",
			Text:     FilterSyntax,
		},
	}, nil
}

// result renders a payload as indented JSON, or err as a tool error. Tool
// failures never fail the protocol call itself.
func result(payload any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("Error: " + err.Error())
}
