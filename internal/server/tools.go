package server

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/shakram02/go-mcp-sql/internal/result"
)

type QueryInput struct {
	SQL string `json:"sql" jsonschema:"The SQL statement to execute. It is passed to the database unchanged."`
}

type ListTablesInput struct{}

type DescribeTableInput struct {
	TableName string `json:"table_name" jsonschema:"Name of the table to describe. Matching is case-insensitive."`
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var Tools = []ToolInfo{
	{ToolQuery, "Execute a SQL statement against the configured database and return the result as tab-separated text, an affected-row count, or a status message."},
	{ToolListTables, "List the tables in the configured database or schema."},
	{ToolDescribeTable, "Describe the columns of a table: name, type, nullability, and default."},
}

func toolInfo(name string) ToolInfo {
	for _, t := range Tools {
		if t.Name == name {
			return t
		}
	}
	panic("unknown tool " + name)
}

func registerTools(server *mcp.Server, d *Dispatcher) error {
	querySchema, err := jsonschema.For[QueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create query input schema: %w", err)
	}
	querySchema.Required = []string{"sql"}

	listSchema, err := jsonschema.For[ListTablesInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_tables input schema: %w", err)
	}

	describeSchema, err := jsonschema.For[DescribeTableInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create describe_table input schema: %w", err)
	}
	describeSchema.Required = []string{"table_name"}

	info := toolInfo(ToolQuery)
	mcp.AddTool(server, &mcp.Tool{
		Name:        info.Name,
		Description: info.Description,
		InputSchema: querySchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, any, error) {
		return toolResult(d.Query(ctx, in.SQL)), nil, nil
	})

	info = toolInfo(ToolListTables)
	mcp.AddTool(server, &mcp.Tool{
		Name:        info.Name,
		Description: info.Description,
		InputSchema: listSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ ListTablesInput) (*mcp.CallToolResult, any, error) {
		return toolResult(d.ListTables(ctx)), nil, nil
	})

	info = toolInfo(ToolDescribeTable)
	mcp.AddTool(server, &mcp.Tool{
		Name:        info.Name,
		Description: info.Description,
		InputSchema: describeSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in DescribeTableInput) (*mcp.CallToolResult, any, error) {
		return toolResult(d.DescribeTable(ctx, in.TableName)), nil, nil
	})

	return nil
}

// toolResult converts an outcome into a single text content item. Failures
// become IsError results rather than protocol errors.
func toolResult(outcome result.Outcome, err error) *mcp.CallToolResult {
	if err != nil {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: ErrorText(err)}},
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.Text(outcome)}},
	}
}
