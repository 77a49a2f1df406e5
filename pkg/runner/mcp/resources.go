package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerResources(srv *server.MCPServer, svc *Service) {
	registerTablesResource(srv, svc)
	registerRecordTemplate(srv, svc)
	registerRecordTableTemplate(srv, svc)
}

func registerTablesResource(srv *server.MCPServer, svc *Service) {
	resource := mcp.NewResource(
		"sandlab://tables",
		"Tables",
		mcp.WithResourceDescription("Tables of the workflow with the paths of their fields."),
		mcp.WithMIMEType("application/json"),
	)

	srv.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tables, err := svc.ListTables()
		if err != nil {
			return nil, err
		}
		payload := map[string]any{
			"workflow": svc.Workflow.Name,
			"tables":   tables,
			"count":    len(tables),
		}
		return encodeResourceJSON(request.Params.URI, payload)
	})
}

func registerRecordTemplate(srv *server.MCPServer, svc *Service) {
	template := mcp.NewResourceTemplate(
		"sandlab://records/{ref}",
		"Daily Record",
		mcp.WithTemplateDescription("Every table of the record for a date, written as 2024-05-01 or 2024-05-01@UNIT."),
		mcp.WithTemplateMIMEType("application/json"),
	)

	srv.AddResourceTemplate(template, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ref := argument(request, "ref")
		if ref == "" {
			return nil, fmt.Errorf("record reference is required")
		}
		key, err := svc.ParseRef(ref)
		if err != nil {
			return nil, err
		}

		tables, err := svc.GetRecord(ctx, key)
		if err != nil {
			return nil, err
		}
		payload := map[string]any{
			"key":    Ref(key),
			"tables": tables,
		}
		return encodeResourceJSON(request.Params.URI, payload)
	})
}

func registerRecordTableTemplate(srv *server.MCPServer, svc *Service) {
	template := mcp.NewResourceTemplate(
		"sandlab://records/{ref}/tables/{table}",
		"Record Table",
		mcp.WithTemplateDescription("One table of a daily record."),
		mcp.WithTemplateMIMEType("application/json"),
	)

	srv.AddResourceTemplate(template, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ref, table := argument(request, "ref"), argument(request, "table")
		if ref == "" || table == "" {
			return nil, fmt.Errorf("record reference and table are required")
		}
		key, err := svc.ParseRef(ref)
		if err != nil {
			return nil, err
		}

		v, err := svc.GetTable(ctx, key, table)
		if err != nil {
			return nil, err
		}
		return encodeResourceJSON(request.Params.URI, map[string]any{"table": v})
	})
}

// argument reads a template variable. Depending on the matcher, values
// arrive as a string or a single-element slice.
func argument(request mcp.ReadResourceRequest, name string) string {
	switch v := request.Params.Arguments[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func encodeResourceJSON(uri string, payload any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
