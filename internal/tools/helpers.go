// Package tools provides shared helpers for MCP tool handlers.
package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesprial/upswatch/internal/safety"
	"github.com/mark3labs/mcp-go/mcp"
)

// JSONResult renders v as indented JSON text content.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns a result flagged as a tool error. The text is prefixed
// with "error: " so clients that ignore the flag still see the failure.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError("error: " + msg)
}

// Outcome renders err as an audit result string.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error: " + err.Error()
}

// LogAudit records an MCP tool invocation. A nil logger records nothing.
func LogAudit(audit *safety.AuditLogger, toolName string, params map[string]any, result string, start time.Time) {
	audit.Record(safety.SurfaceMCP, toolName, params, result, start)
}

// Query runs fn, audits the call and converts its outcome into a tool
// result: the value as JSON on success, an error result otherwise.
func Query(audit *safety.AuditLogger, toolName string, params map[string]any, fn func() (any, error)) *mcp.CallToolResult {
	start := time.Now()
	v, err := fn()
	LogAudit(audit, toolName, params, Outcome(err), start)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return JSONResult(v)
}
