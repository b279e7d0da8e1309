// code-nest MCP server - exposes the pairing platform as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Obagson/code-nest/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:  envOrDefault("CODENEST_API_URL", "http://localhost:8080"),
		Account: os.Getenv("CODENEST_ACCOUNT"),
	}

	if cfg.Account == "" {
		fmt.Fprintln(os.Stderr, "CODENEST_ACCOUNT is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
