package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tableflip.dev/sandlab/pkg/ledger"
)

func registerTools(srv *server.MCPServer, svc *Service) {
	registerListTablesTool(srv, svc)
	registerGetTableTool(srv, svc)
	registerSetValuesTool(srv, svc)
	registerAppendRowTool(srv, svc)
	registerListDaysTool(srv, svc)
}

func withRecordKey(svc *Service) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Record date as YYYY-MM-DD."),
		),
	}
	if svc.Workflow != nil && svc.Workflow.UnitRequired {
		opts = append(opts, mcp.WithString("unit",
			mcp.Required(),
			mcp.Description("Unit the record is kept for, such as a moulding line."),
		))
	}
	return opts
}

func withTable() mcp.ToolOption {
	return mcp.WithString("table",
		mcp.Required(),
		mcp.Description("Table number or name, see list_tables."),
	)
}

func registerListTablesTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_tables",
		mcp.WithDescription("List the tables of the workflow and the paths of their fields."),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := svc.ListTables()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{
			"workflow": svc.Workflow.Name,
			"tables":   tables,
			"count":    len(tables),
		})
	})
}

func registerGetTableTool(srv *server.MCPServer, svc *Service) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Fetch the values of one table of a daily record. Committed values can not be changed."),
		withTable(),
	}, withRecordKey(svc)...)
	tool := mcp.NewTool("get_table", opts...)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := request.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		key, err := svc.Key(request.GetString("date", ""), request.GetString("unit", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		v, err := svc.GetTable(ctx, key, table)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(v)
	})
}

func registerSetValuesTool(srv *server.MCPServer, svc *Service) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Set values of one table and submit them. Values already committed by someone else are skipped."),
		withTable(),
		mcp.WithObject("values",
			mcp.Required(),
			mcp.Description(`Values keyed by field path, e.g. {"shiftI.vcm": "2.1", "shiftII.rSand[0]": "120"}.`),
		),
	}, withRecordKey(svc)...)
	tool := mcp.NewTool("set_values", opts...)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Date   string         `json:"date"`
			Unit   string         `json:"unit"`
			Table  string         `json:"table"`
			Values map[string]any `json:"values"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		key, err := svc.Key(args.Date, args.Unit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dto, err := svc.SetValues(ctx, key, args.Table, texts(args.Values))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(dto)
	})
}

func registerAppendRowTool(srv *server.MCPServer, svc *Service) {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Append one row to a sequence of a table and submit it."),
		withTable(),
		mcp.WithString("section",
			mcp.Required(),
			mcp.Description("Section holding the sequence, e.g. shiftI or log."),
		),
		mcp.WithString("sequence",
			mcp.Required(),
			mcp.Description("Sequence name, e.g. mix, rSand or entries."),
		),
		mcp.WithObject("cells",
			mcp.Required(),
			mcp.Description(`Cells keyed by column name, e.g. {"mixNoStart": "1", "mixNoEnd": "20"}.`),
		),
	}, withRecordKey(svc)...)
	tool := mcp.NewTool("append_row", opts...)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Date     string         `json:"date"`
			Unit     string         `json:"unit"`
			Table    string         `json:"table"`
			Section  string         `json:"section"`
			Sequence string         `json:"sequence"`
			Cells    map[string]any `json:"cells"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		key, err := svc.Key(args.Date, args.Unit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dto, err := svc.AppendRow(ctx, key, args.Table, ledger.Section(args.Section), args.Sequence, texts(args.Cells))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(dto)
	})
}

func registerListDaysTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"list_days",
		mcp.WithDescription("List the days that have a record, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of days to return (default 31)."),
			mcp.Min(1),
			mcp.Max(366),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 31)
		days, err := svc.ListDays(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toJSONResult(map[string]any{
			"days":  days,
			"count": len(days),
		})
	})
}

func texts(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = ledger.Text(v)
	}
	return out
}

func toJSONResult(data any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return result, nil
}
