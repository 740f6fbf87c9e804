package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// endpoint appends the /mcp path the StreamableHTTP server listens on, so
// --remote accepts both "http://host:8080" and "http://host:8080/mcp".
func endpoint(addr string) string {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	addr = strings.TrimRight(addr, "/")
	if strings.HasSuffix(addr, "/mcp") {
		return addr
	}
	return addr + "/mcp"
}

// newMCPClient creates, starts, and initializes an MCP HTTP client against addr.
// The returned cleanup function should be deferred by the caller.
func newMCPClient(ctx context.Context, addr string) (*mcpclient.Client, func(), error) {
	c, err := mcpclient.NewStreamableHttpClient(endpoint(addr))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	if _, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "videobatch-cli",
				Version: "0.0.1",
			},
		},
	}); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	return c, func() { c.Close() }, nil
}

// remoteCall routes a command through a running server: it calls tool with
// args on addr and prints the text result to out.
func remoteCall(ctx context.Context, addr, tool string, args map[string]any, out io.Writer) error {
	c, cleanup, err := newMCPClient(ctx, addr)
	if err != nil {
		return fmt.Errorf("connecting to server at %s: %w", addr, err)
	}
	defer cleanup()

	return callTool(ctx, c, tool, args, out)
}

// callTool calls the named tool and prints its text content. A tool-level
// error becomes exit code 1 after its text is printed.
func callTool(ctx context.Context, c *mcpclient.Client, tool string, args map[string]any, out io.Writer) error {
	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return fmt.Errorf("calling %s: %w", tool, err)
	}

	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			fmt.Fprintln(out, tc.Text)
		}
	}
	if result.IsError {
		return &exitError{code: 1}
	}
	return nil
}
