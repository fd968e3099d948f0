package ups

import (
	"context"
	"time"

	"github.com/jamesprial/upswatch/internal/safety"
	"github.com/jamesprial/upswatch/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	toolNameListDevices     = "ups_list_devices"
	toolNameGetDevice       = "ups_get_device"
	toolNameGetVariable     = "ups_get_variable"
	toolNameGetVariableType = "ups_get_variable_type"
)

// Resolver serves point lookups against the latest snapshot.
type Resolver interface {
	Latest() (*Snapshot, error)
	GetDevice(id string) (Device, error)
	GetVariable(id, name string) (Variable, error)
	GetVariableType(id, name string) (VariableType, error)
}

var _ Resolver = (*Store)(nil)

// UPSTools returns the tool registrations for UPS queries.
// All tools are read-only.
func UPSTools(res Resolver, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		listDevices(res, audit),
		getDevice(res, audit),
		getVariable(res, audit),
		getVariableType(res, audit),
	}
}

// deviceSummary is the per-device entry of ups_list_devices.
type deviceSummary struct {
	GridRow
	Reachable bool `json:"reachable"`
	Variables int  `json:"variables"`
}

type listResult struct {
	TakenAt time.Time       `json:"taken_at"`
	Devices []deviceSummary `json:"devices"`
}

func listDevices(res Resolver, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameListDevices,
		mcp.WithDescription("List all UPS devices with status, battery charge and load from the latest poll."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return tools.Query(audit, toolNameListDevices, map[string]any{}, func() (any, error) {
			snap, err := res.Latest()
			if err != nil {
				return nil, err
			}
			devices := snap.Devices()
			out := listResult{TakenAt: snap.TakenAt(), Devices: make([]deviceSummary, len(devices))}
			for i, d := range devices {
				out.Devices[i] = deviceSummary{GridRow: d.Row(), Reachable: d.Reachable(), Variables: d.Len()}
			}
			return out, nil
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

type deviceResult struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Status      StatusClassification `json:"status"`
	Vars        map[string]Variable  `json:"vars"`
}

func newDeviceResult(d Device) deviceResult {
	return deviceResult{ID: d.ID, Name: d.Name, Description: d.Description, Status: d.Status(), Vars: d.Vars()}
}

func getDevice(res Resolver, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameGetDevice,
		mcp.WithDescription("Get every variable of one UPS device plus its classified status."),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("The device id."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("device", "")
		return tools.Query(audit, toolNameGetDevice, map[string]any{"device": id}, func() (any, error) {
			d, err := res.GetDevice(id)
			if err != nil {
				return nil, err
			}
			return newDeviceResult(d), nil
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

type variableResult struct {
	Device string       `json:"device"`
	Name   string       `json:"name"`
	Value  any          `json:"value"`
	Type   VariableType `json:"type"`
}

func getVariable(res Resolver, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameGetVariable,
		mcp.WithDescription("Get a single variable (e.g. battery.charge) of a UPS device."),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("The device id."),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The variable name, e.g. ups.status."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("device", "")
		name := req.GetString("name", "")
		return tools.Query(audit, toolNameGetVariable, map[string]any{"device": id, "name": name}, func() (any, error) {
			v, err := res.GetVariable(id, name)
			if err != nil {
				return nil, err
			}
			return variableResult{Device: id, Name: v.Name(), Value: v.Value(), Type: v.Type()}, nil
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func getVariableType(res Resolver, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameGetVariableType,
		mcp.WithDescription("Get the type (STRING, NUMBER or BOOLEAN) of a UPS variable without its value."),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("The device id."),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The variable name."),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("device", "")
		name := req.GetString("name", "")
		return tools.Query(audit, toolNameGetVariableType, map[string]any{"device": id, "name": name}, func() (any, error) {
			typ, err := res.GetVariableType(id, name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"device": id, "name": name, "type": typ}, nil
		}), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}
