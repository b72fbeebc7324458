// Package mcptool converts MCP tool definitions into the engine's tool-call
// descriptors, so hosts that front MCP servers can feed discovered tools
// straight into the decision engine.
package mcptool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Tool-Gate/toolgate/internal/domain/rule"
)

// Annotation flag names as rules reference them.
const (
	AnnotationReadOnly    = "readOnlyHint"
	AnnotationDestructive = "destructiveHint"
	AnnotationIdempotent  = "idempotentHint"
	AnnotationOpenWorld   = "openWorldHint"
)

// CallDescriptor builds the ToolCall descriptor for invoking an MCP tool with
// the given arguments. The server name feeds the canonical "server__tool"
// naming; the tool's annotations become the call's capability flags.
func CallDescriptor(serverName string, tool *mcp.Tool, args map[string]any) rule.ToolCall {
	return rule.ToolCall{
		Name:        tool.Name,
		ServerName:  serverName,
		Args:        args,
		Annotations: AnnotationFlags(tool.Annotations),
	}
}

// AnnotationFlags flattens MCP tool annotations into the flag map rules match
// against. The MCP spec defaults destructiveHint and openWorldHint to true
// when absent; those defaults are preserved here so a rule requiring
// destructiveHint=false only matches tools that explicitly declare it.
func AnnotationFlags(ann *mcp.ToolAnnotations) map[string]bool {
	if ann == nil {
		return nil
	}
	flags := map[string]bool{
		AnnotationReadOnly:    ann.ReadOnlyHint,
		AnnotationIdempotent:  ann.IdempotentHint,
		AnnotationDestructive: true,
		AnnotationOpenWorld:   true,
	}
	if ann.DestructiveHint != nil {
		flags[AnnotationDestructive] = *ann.DestructiveHint
	}
	if ann.OpenWorldHint != nil {
		flags[AnnotationOpenWorld] = *ann.OpenWorldHint
	}
	return flags
}
