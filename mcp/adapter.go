package mcp

import (
	"context"
	"fmt"

	tether "github.com/rwahyudi/tether"
)

// remoteTool exposes one server-side MCP tool as a tether.Tool.
type remoteTool struct {
	client *Client
	def    ToolDef
}

func (t *remoteTool) Spec() tether.ToolSpec {
	return tether.ToolSpec{
		Name:        t.def.Name,
		Description: t.def.Description,
		InputSchema: t.def.InputSchema,
	}
}

func (t *remoteTool) Stream(ctx context.Context, tc *tether.ToolContext, _ chan<- tether.Event) (*tether.ToolResult, error) {
	res, err := t.client.CallTool(ctx, t.def.Name, tc.ToolUse.Input)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %q: %w", t.def.Name, err)
	}
	status := tether.ToolStatusSuccess
	if res.IsError {
		status = tether.ToolStatusError
	}
	return &tether.ToolResult{Status: status, Content: res.Text()}, nil
}

// Tools discovers the server's tools and wraps each as a tether.Tool
// ready for registration with an agent.
func (c *Client) Tools(ctx context.Context) ([]tether.Tool, error) {
	defs, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]tether.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, &remoteTool{client: c, def: d})
	}
	return tools, nil
}

var _ tether.Tool = (*remoteTool)(nil)
