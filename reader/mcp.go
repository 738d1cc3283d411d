package reader

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/readmark/kit"
)

// RegisterMCP registers the host operations as MCP tools on srv.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	eps := newEndpoints(s, s.logger)

	pageProp := map[string]any{"type": "string", "description": "Page id returned by readmark_open_page"}
	pageOnly := inputSchema(map[string]any{"page": pageProp}, []string{"page"})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readmark_open_page",
		Description: "Fetch an article (or take inline HTML), sanitise it and open an annotation page. Returns the page info including its id.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Article URL (http or https)"},
			"html": map[string]any{"type": "string", "description": "Inline article HTML; skips fetching"},
			"prefs": map[string]any{
				"type":        "object",
				"description": "Reading preferences",
				"properties": map[string]any{
					"dark":           map[string]any{"type": "boolean"},
					"fontSize":       map[string]any{"type": "integer", "minimum": 10, "maximum": 40},
					"showVocabulary": map[string]any{"type": "boolean"},
				},
			},
		}, nil),
	}, eps.open, decodeTool[OpenRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readmark_set_busy",
		Description: "Tell the page whether the host is showing modal UI. While busy, selections are not reported and the menu stays hidden.",
		InputSchema: inputSchema(map[string]any{
			"page": pageProp,
			"busy": map[string]any{"type": "boolean"},
		}, []string{"page", "busy"}),
	}, eps.setBusy, decodeTool[busyReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readmark_create_highlight",
		Description: "Turn the current text selection of the page into a highlight.",
		InputSchema: pageOnly,
	}, eps.create, decodeTool[pageReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readmark_remove_highlight",
		Description: "Remove one highlight by id. Unknown ids are reported with removed=false.",
		InputSchema: inputSchema(map[string]any{
			"page": pageProp,
			"id":   map[string]any{"type": "string", "description": "Highlight id"},
		}, []string{"page", "id"}),
	}, eps.remove, decodeTool[removeReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readmark_remove_all_highlights",
		Description: "Remove every highlight of the page.",
		InputSchema: pageOnly,
	}, eps.removeAll, decodeTool[pageReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readmark_list_highlights",
		Description: "List the highlights of the page in creation order.",
		InputSchema: pageOnly,
	}, eps.list, decodeTool[pageReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "readmark_export_markdown",
		Description: "Export the article as Markdown with its highlights quoted at the end.",
		InputSchema: pageOnly,
	}, eps.markdown, decodeTool[pageReq])
}

func decodeTool[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	r, err := kit.DecodeArgs[T](req)
	if err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
