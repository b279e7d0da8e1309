package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all code-nest tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("code-nest", "1.0.0")
	client := NewClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolBrowseSessions, h.HandleBrowseSessions)
	s.AddTool(ToolGetSession, h.HandleGetSession)
	s.AddTool(ToolProposeSession, h.HandleProposeSession)
	s.AddTool(ToolJoinSession, h.HandleJoinSession)
	s.AddTool(ToolConfirmSession, h.HandleConfirmSession)
	s.AddTool(ToolRateSession, h.HandleRateSession)
	s.AddTool(ToolCheckBalance, h.HandleCheckBalance)
	s.AddTool(ToolGetProfile, h.HandleGetProfile)

	return s
}
