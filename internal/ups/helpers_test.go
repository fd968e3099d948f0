package ups

import (
	"context"
	"testing"
	"time"

	"github.com/jamesprial/upswatch/internal/graphql"
	"github.com/mark3labs/mcp-go/mcp"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// mockSource implements DeviceSource with func fields.
type mockSource struct {
	listFunc func(ctx context.Context) ([]DeviceInfo, error)
	varsFunc func(ctx context.Context, id string) ([]RawVariable, error)
}

func (m *mockSource) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	return m.listFunc(ctx)
}

func (m *mockSource) Variables(ctx context.Context, id string) ([]RawVariable, error) {
	return m.varsFunc(ctx, id)
}

var _ DeviceSource = (*mockSource)(nil)

// staticSource serves a fixed device table. Devices without an entry in
// vars fail their fetch.
func staticSource(infos []DeviceInfo, vars map[string][]RawVariable) *mockSource {
	return &mockSource{
		listFunc: func(ctx context.Context) ([]DeviceInfo, error) { return infos, nil },
		varsFunc: func(ctx context.Context, id string) ([]RawVariable, error) {
			v, ok := vars[id]
			if !ok {
				return nil, ErrDeviceNotFound
			}
			return v, nil
		},
	}
}

// mockGraphQLClient implements graphql.Client.
type mockGraphQLClient struct {
	executeFunc func(ctx context.Context, query string, variables map[string]any) ([]byte, error)
}

func (m *mockGraphQLClient) Execute(ctx context.Context, query string, variables map[string]any) ([]byte, error) {
	return m.executeFunc(ctx, query, variables)
}

var _ graphql.Client = (*mockGraphQLClient)(nil)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rawDevice(id string, vars ...RawVariable) RawDevice {
	return RawDevice{DeviceInfo: DeviceInfo{ID: id, Name: id}, Vars: vars}
}

func rv(name string, value any) RawVariable {
	return RawVariable{Name: name, Value: value}
}

// apcFixture is a trimmed capture of LIST VAR from an APC Back-UPS on usbhid-ups.
func apcFixture() []RawVariable {
	return []RawVariable{
		rv("battery.charge", "100"),
		rv("battery.charge.low", "10"),
		rv("battery.runtime", "2580"),
		rv("battery.type", "PbAc"),
		rv("device.mfr", "American Power Conversion"),
		rv("input.voltage", "121.0"),
		rv("ups.beeper.status", "enabled"),
		rv("ups.load", "17"),
		rv("ups.status", "OL"),
		rv("ups.test.result", "No test initiated"),
	}
}

// ---------------------------------------------------------------------------
// MCP helpers
// ---------------------------------------------------------------------------

func newCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func extractResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Content[0] is %T, want mcp.TextContent", result.Content[0])
	}
	return tc.Text
}
