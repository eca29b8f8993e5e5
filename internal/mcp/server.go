package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/paularlott/mcp"

	"github.com/martinsuchenak/ipamd/internal/log"
	"github.com/martinsuchenak/ipamd/internal/model"
	"github.com/martinsuchenak/ipamd/internal/registry"
	"github.com/martinsuchenak/ipamd/pkg/cidrtree"
)

// Server wraps the MCP server with the CIDR registry
type Server struct {
	mcpServer   *mcp.Server
	registry    *registry.Registry
	bearerToken string
}

// NewServer creates a new MCP server for CIDR management
func NewServer(reg *registry.Registry, bearerToken string) *Server {
	s := &Server{
		mcpServer:   mcp.NewServer("ipamd", "1.0.0"),
		registry:    reg,
		bearerToken: bearerToken,
	}
	s.registerTools()
	return s
}

// registerTools registers all CIDR management tools
func (s *Server) registerTools() {
	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_register", "Register a CIDR block in the hierarchy. Registering an already-known block merges its tags.",
			mcp.String("cidr", "CIDR in standard notation (e.g., 10.0.0.0/16)", mcp.Required()),
			mcp.String("kind", "Block kind: STATIC, VPC, SUBNET or EIP"),
			mcp.StringArray("tags", "Tags for categorization"),
		),
		s.handleRegister,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_get", "Get a registered CIDR block with its kind, tags and source",
			mcp.String("cidr", "CIDR in standard notation", mcp.Required()),
		),
		s.handleGet,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_delete", "Remove a CIDR block. Its children are re-parented to the next containing block.",
			mcp.String("cidr", "CIDR in standard notation", mcp.Required()),
		),
		s.handleDelete,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_list", "List registered CIDR blocks, optionally filtered by tag or kind",
			mcp.String("tag", "Filter by tag"),
			mcp.String("kind", "Filter by kind: STATIC, VPC, SUBNET or EIP"),
		),
		s.handleList,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_children", "Get the immediate children of a CIDR block. Without a cidr argument, returns the top-level blocks.",
			mcp.String("cidr", "CIDR in standard notation"),
		),
		s.handleChildren,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_ancestors", "Get the chain of blocks containing a CIDR, outermost first",
			mcp.String("cidr", "CIDR in standard notation", mcp.Required()),
		),
		s.handleAncestors,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_tree", "Render the CIDR hierarchy as a tree. Without a cidr argument, renders the whole hierarchy.",
			mcp.String("cidr", "CIDR in standard notation"),
		),
		s.handleTree,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("cidr_free_block", "Find the first unallocated sub-block of a given prefix length inside a registered parent",
			mcp.String("parent", "Parent CIDR in standard notation", mcp.Required()),
			mcp.String("prefix_length", "Desired prefix length (e.g., 24)", mcp.Required()),
		),
		s.handleFreeBlock,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("ip_lookup", "Find the most specific registered block containing an IP address",
			mcp.String("ip", "IPv4 or IPv6 address", mcp.Required()),
		),
		s.handleIPLookup,
	)
}

// HandleRequest handles MCP HTTP requests with optional bearer token authentication
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	log.Debug("MCP request received", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

	// Check bearer token if configured
	if s.bearerToken != "" {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			log.Warn("MCP request missing Authorization header", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			log.Warn("MCP request invalid Authorization format", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid Authorization format", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if token != s.bearerToken {
			log.Warn("MCP request invalid token", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
	}

	s.mcpServer.HandleRequest(w, r)
}

// Tool handlers

func (s *Server) handleRegister(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	cidr, err := req.String("cidr")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("cidr is required: " + err.Error())
	}

	kind := cidrtree.ParseKind(req.StringOr("kind", ""))
	tags, _ := req.StringSlice("tags")

	log.Debug("MCP cidr register request", "cidr", cidr, "kind", kind)

	rec, err := s.registry.Register(cidr, kind, tags, "mcp")
	if err != nil {
		log.Error("MCP cidr register failed", "error", err, "cidr", cidr)
		return nil, mcp.NewToolErrorInternal("failed to register CIDR: " + err.Error())
	}

	log.Info("MCP cidr registered", "cidr", rec.CIDR, "kind", rec.Kind)
	return mcp.NewToolResponseText(fmt.Sprintf("Registered %s (%s)", rec.CIDR, rec.Kind)), nil
}

func (s *Server) handleGet(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	cidr, err := req.String("cidr")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("cidr is required: " + err.Error())
	}

	rec, err := s.registry.Get(cidr)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("CIDR not found: " + err.Error())
	}

	return mcp.NewToolResponseText(s.formatRecord(rec)), nil
}

func (s *Server) handleDelete(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	cidr, err := req.String("cidr")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("cidr is required: " + err.Error())
	}

	if err := s.registry.Deregister(cidr); err != nil {
		log.Error("MCP cidr delete failed", "error", err, "cidr", cidr)
		return nil, mcp.NewToolErrorInternal("failed to delete CIDR: " + err.Error())
	}

	log.Info("MCP cidr deleted", "cidr", cidr)
	return mcp.NewToolResponseText("CIDR deleted successfully"), nil
}

func (s *Server) handleList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	tag := req.StringOr("tag", "")
	kindText := req.StringOr("kind", "")

	var filter *model.CIDRFilter
	if tag != "" || kindText != "" {
		filter = &model.CIDRFilter{Tag: tag}
		if kindText != "" {
			filter.Kind = cidrtree.ParseKind(kindText)
		}
	}

	records, err := s.registry.List(filter)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("failed to list CIDRs: " + err.Error())
	}

	if len(records) == 0 {
		return mcp.NewToolResponseText("No CIDR blocks found"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d CIDR blocks:\n\n", len(records)))
	for _, rec := range records {
		result.WriteString(s.formatRecord(rec))
		result.WriteString("\n")
	}
	return mcp.NewToolResponseText(result.String()), nil
}

func (s *Server) handleChildren(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	cidr := req.StringOr("cidr", "")

	children, err := s.registry.Children(cidr)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("failed to get children: " + err.Error())
	}

	if len(children) == 0 {
		if cidr == "" {
			return mcp.NewToolResponseText("No CIDR blocks registered"), nil
		}
		return mcp.NewToolResponseText(fmt.Sprintf("%s has no children", cidr)), nil
	}

	label := cidr
	if label == "" {
		label = "top level"
	}
	return mcp.NewToolResponseText(fmt.Sprintf("Children of %s:\n%s", label, strings.Join(children, "\n"))), nil
}

func (s *Server) handleAncestors(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	cidr, err := req.String("cidr")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("cidr is required: " + err.Error())
	}

	ancestors, err := s.registry.Ancestors(cidr)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("failed to get ancestors: " + err.Error())
	}

	if len(ancestors) == 0 {
		return mcp.NewToolResponseText(fmt.Sprintf("%s is a top-level block", cidr)), nil
	}
	return mcp.NewToolResponseText(fmt.Sprintf("Ancestors of %s (outermost first):\n%s", cidr, strings.Join(ancestors, "\n"))), nil
}

func (s *Server) handleTree(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	cidr := req.StringOr("cidr", "")

	rendered, err := s.registry.Render(cidr)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("failed to render tree: " + err.Error())
	}
	if rendered == "" {
		return mcp.NewToolResponseText("No CIDR blocks registered"), nil
	}
	return mcp.NewToolResponseText(rendered), nil
}

func (s *Server) handleFreeBlock(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	parent, err := req.String("parent")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("parent is required: " + err.Error())
	}

	lengthText, err := req.String("prefix_length")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("prefix_length is required: " + err.Error())
	}
	prefixLen, err := strconv.Atoi(lengthText)
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("prefix_length must be a number: " + err.Error())
	}

	free, err := s.registry.FreeBlock(parent, prefixLen)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("failed to find free block: " + err.Error())
	}

	log.Info("MCP free block found", "parent", parent, "cidr", free)
	return mcp.NewToolResponseText(free), nil
}

func (s *Server) handleIPLookup(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	ip, err := req.String("ip")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("ip is required: " + err.Error())
	}

	rec, err := s.registry.LookupIP(ip)
	if err != nil {
		return nil, mcp.NewToolErrorInternal("lookup failed: " + err.Error())
	}

	return mcp.NewToolResponseText(fmt.Sprintf("%s is inside:\n%s", ip, s.formatRecord(rec))), nil
}

// Utility functions

func (s *Server) formatRecord(rec *model.CIDRRecord) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("CIDR: %s\n", rec.CIDR))
	result.WriteString(fmt.Sprintf("Kind: %s\n", rec.Kind))
	if len(rec.Tags) > 0 {
		result.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(rec.Tags, ", ")))
	}
	if rec.Source != "" {
		result.WriteString(fmt.Sprintf("Source: %s\n", rec.Source))
	}
	return result.String()
}

// GetHTTPHandler returns the HTTP handler for the MCP server
func (s *Server) GetHTTPHandler() http.HandlerFunc {
	return s.HandleRequest
}

// LogStartup logs MCP server startup information
func (s *Server) LogStartup() {
	log.Info("MCP Server initialized", "version", "1.0.0")
	if s.bearerToken != "" {
		log.Info("MCP authentication enabled", "type", "Bearer token")
	} else {
		log.Info("MCP authentication disabled")
	}
	tools := s.mcpServer.ListTools()
	log.Info("MCP tools registered", "count", len(tools))
	for _, tool := range tools {
		log.Debug("MCP tool registered", "name", tool.Name, "description", tool.Description)
	}
}
