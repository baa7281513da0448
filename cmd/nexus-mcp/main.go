// nexus-mcp exposes the assistant's tool registry over MCP stdio so
// other agents can manage the same tasks, transactions and calendar.
// Dispatch goes through the exact same registry path the conversation
// engine uses, so validation and result envelopes are identical.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/eduplay1216-alt/myjarvis/internal/calendar"
	"github.com/eduplay1216-alt/myjarvis/internal/gemini"
	"github.com/eduplay1216-alt/myjarvis/internal/store"
	"github.com/eduplay1216-alt/myjarvis/internal/tools"
)

func main() {
	_ = godotenv.Load()

	dataDir := envOr("DATA_DIR", "data")
	owner := envOr("OWNER_ID", "default")
	tz := envOr("CALENDAR_TIMEZONE", "America/Sao_Paulo")

	st, err := store.Open(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	var cal calendar.Service
	if creds := os.Getenv("GOOGLE_CALENDAR_CREDENTIALS_FILE"); creds != "" {
		client, err := calendar.NewClient(calendar.Config{
			CredentialsFile: creds,
			CalendarID:      os.Getenv("GOOGLE_CALENDAR_ID"),
			Timezone:        tz,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "calendar disabled: %v\n", err)
		} else {
			cal = client
		}
	}

	registry := tools.NewRegistry()
	tools.RegisterAssistantTools(registry, &tools.Deps{
		Store:    st,
		Calendar: cal,
		Location: loc,
	})

	s := server.NewMCPServer(
		"nexus-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	for _, decl := range registry.Declarations() {
		s.AddTool(mcpTool(decl), mcpHandler(registry, owner, decl.Name))
	}

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// mcpTool converts a registry declaration to an MCP tool definition.
func mcpTool(decl gemini.FunctionDeclaration) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(decl.Description)}
	if decl.Parameters != nil {
		required := make(map[string]bool, len(decl.Parameters.Required))
		for _, name := range decl.Parameters.Required {
			required[name] = true
		}
		for name, prop := range decl.Parameters.Properties {
			var popts []mcp.PropertyOption
			if prop.Description != "" {
				popts = append(popts, mcp.Description(prop.Description))
			}
			if required[name] {
				popts = append(popts, mcp.Required())
			}
			switch prop.Type {
			case "string":
				opts = append(opts, mcp.WithString(name, popts...))
			case "number":
				opts = append(opts, mcp.WithNumber(name, popts...))
			case "boolean":
				opts = append(opts, mcp.WithBoolean(name, popts...))
			case "array":
				opts = append(opts, mcp.WithArray(name, popts...))
			}
		}
	}
	return mcp.NewTool(decl.Name, opts...)
}

// mcpHandler adapts registry dispatch to the MCP result shape.
func mcpHandler(registry *tools.Registry, owner, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)

		result := registry.Dispatch(ctx, owner, name, args)
		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		if !result.Success() {
			return mcp.NewToolResultError(string(data)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
