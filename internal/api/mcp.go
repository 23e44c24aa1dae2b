package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/caseflow/internal/state"
	"github.com/kalambet/caseflow/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
}

// NewMCPServer creates an MCP server exposing read-only conversation
// inspection tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"caseflow",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("caseflow: inspect orchestration state, case actions and the dispatch log of support conversations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("conversation_state",
			mcp.WithDescription("Return the orchestration status, owner and counters of a conversation."),
			mcp.WithString("conversation_id", mcp.Description("Conversation ID"), mcp.Required()),
		),
		mcpConversationState(deps),
	)

	s.AddTool(
		mcp.NewTool("case_actions",
			mcp.WithDescription("Return the current solution plan of a conversation with each action's status."),
			mcp.WithString("conversation_id", mcp.Description("Conversation ID"), mcp.Required()),
		),
		mcpCaseActions(deps),
	)

	s.AddTool(
		mcp.NewTool("dispatch_log",
			mcp.WithDescription("Return the most recent agent dispatches recorded for a conversation."),
			mcp.WithString("conversation_id", mcp.Description("Conversation ID"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
		),
		mcpDispatchLog(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"caseflow://escalations",
			"Escalated Conversations",
			mcp.WithResourceDescription("Last 20 conversations handed over to a human"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceEscalations(deps),
	)

	return s
}

func mcpConversationState(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}
		v, err := loadState(deps.Store, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("conversation %s has no orchestration state", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load state: %v", err)), nil
		}
		return mcpJSON(v), nil
	}
}

func mcpCaseActions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}
		v, err := loadSolution(deps.Store, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("conversation %s has no solution", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load solution: %v", err)), nil
		}
		return mcpJSON(v), nil
	}
}

func mcpDispatchLog(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		entries, err := loadLog(deps.Store, id, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load dispatch log: %v", err)), nil
		}
		return mcpJSON(entries), nil
	}
}

func mcpResourceEscalations(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		states, err := deps.Store.ListOrchestratorStates(state.StatusEscalated, 20)
		if err != nil {
			return nil, fmt.Errorf("failed to list escalations: %w", err)
		}

		type escalation struct {
			ConversationID string `json:"conversation_id"`
			UpdatedAt      string `json:"updated_at"`
		}
		out := make([]escalation, len(states))
		for i, st := range states {
			out[i] = escalation{ConversationID: st.ConversationID, UpdatedAt: st.UpdatedAt.Format(time.RFC3339)}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal escalations: %w", err)
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

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
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
