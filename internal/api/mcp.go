package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/mirror/internal/capture"
	"github.com/kalambet/mirror/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Capture *capture.Service
}

// NewMCPServer creates an MCP server with the mirror tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mirror",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mirror: capture thoughts and recall them with their tags, actions and links."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("capture_thought",
			mcp.WithDescription("Capture a thought. It is tagged, linked to earlier thoughts and scanned for action items before it is stored."),
			mcp.WithString("content", mcp.Description("The thought text"), mcp.Required()),
			mcp.WithString("source", mcp.Description("text_note (default), voice_note or document")),
		),
		mcpCaptureThought(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Search stored thoughts by meaning."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_thoughts",
			mcp.WithDescription("List the most recently captured thoughts."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpRecentThoughts(deps),
	)

	s.AddTool(
		mcp.NewTool("tag_thought",
			mcp.WithDescription("Attach custom tags to a stored thought."),
			mcp.WithString("thought_id", mcp.Description("ID of the thought"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Tag names to attach"), mcp.Required()),
		),
		mcpTagThought(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"mirror://recent",
			"Recent Thoughts",
			mcp.WithResourceDescription("Last 10 captured thoughts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpCaptureThought(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		out, err := deps.Capture.CaptureText(ctx, capture.Input{
			Content:  content,
			Source:   req.GetString("source", ""),
			Metadata: map[string]any{"client": "mcp"},
		})
		if err != nil {
			return mcpError(fmt.Sprintf("capture failed: %v", err)), nil
		}
		return mcpJSON(out)
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		thoughts, err := deps.Capture.Search(ctx, query, limit)
		if errors.Is(err, capture.ErrSearchUnavailable) {
			return mcpError("recall is not available: no embedding model configured"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		return mcpJSON(summarize(thoughts))
	}
}

func mcpRecentThoughts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 || limit > 100 {
			limit = 10
		}

		thoughts, err := deps.Store.RecentThoughts(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing thoughts failed: %v", err)), nil
		}
		return mcpJSON(summarize(thoughts))
	}
}

func mcpTagThought(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("thought_id")
		if err != nil {
			return mcpError("thought_id is required"), nil
		}
		tags := req.GetStringSlice("tags", nil)
		if len(tags) == 0 {
			return mcpError("tags must not be empty"), nil
		}

		added, all, err := deps.Capture.AddTags(ctx, id, tags)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("thought %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("tagging failed: %v", err)), nil
		}
		if added == nil {
			added = []string{}
		}
		return mcpJSON(TagResponse{ThoughtID: id, AddedTags: added, AllTags: all})
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		thoughts, err := deps.Store.RecentThoughts(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent thoughts: %w", err)
		}

		b, err := json.Marshal(summarize(thoughts))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal thoughts: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

type thoughtSummary struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Content   string `json:"content"`
	Summary   string `json:"summary,omitempty"`
	CreatedAt string `json:"created_at"`
}

func summarize(thoughts []storage.Thought) []thoughtSummary {
	out := make([]thoughtSummary, len(thoughts))
	for i, t := range thoughts {
		content := t.Content
		if utf8.RuneCountInString(content) > 200 {
			runes := []rune(content)
			content = string(runes[:200]) + "..."
		}
		out[i] = thoughtSummary{
			ID:        t.ID,
			Source:    t.Source,
			Content:   content,
			Summary:   t.Summary,
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
		}
	}
	return out
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
