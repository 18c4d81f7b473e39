package dispatch

import "github.com/flycode/flycored/pkg/protocol"

// permissiveSchema satisfies §6's "tools/list returns descriptors with
// permissive inputSchema" contract; validation happens inside each tool.
var permissiveSchema = map[string]any{"type": "object", "additionalProperties": true}

var toolDescriptors = []protocol.ToolDescriptor{
	{Name: "fs.ls", Description: "List directory entries under an allowed root.", InputSchema: permissiveSchema},
	{Name: "fs.mkdir", Description: "Create a directory.", InputSchema: permissiveSchema},
	{Name: "fs.read", Description: "Read a file, optionally selecting a character range, line, or line range.", InputSchema: permissiveSchema},
	{Name: "fs.search", Description: "Search file contents by substring or regex.", InputSchema: permissiveSchema},
	{Name: "fs.write", Description: "Write (create, overwrite, or append to) a file, two-phase with confirmation.", InputSchema: permissiveSchema},
	{Name: "fs.writeBatch", Description: "Atomically write multiple files, two-phase with confirmation and rollback.", InputSchema: permissiveSchema},
	{Name: "fs.rm", Description: "Remove a file or directory.", InputSchema: permissiveSchema},
	{Name: "fs.mv", Description: "Move or rename a file or directory.", InputSchema: permissiveSchema},
	{Name: "fs.chmod", Description: "Change a file's permission bits.", InputSchema: permissiveSchema},
	{Name: "fs.diff", Description: "Produce a unified diff between two files, or a file and inline content.", InputSchema: permissiveSchema},
	{Name: "process.run", Description: "Run an allowlisted command directly, with no shell interpretation.", InputSchema: permissiveSchema},
	{Name: "shell.exec", Description: "Run a command string through the host shell.", InputSchema: permissiveSchema},
}

// toolsNeedingConfirmation is the gated-tool set of §4.J step 3.c.
var toolsNeedingConfirmation = map[string]bool{
	"fs.write":      true,
	"fs.writeBatch": true,
	"fs.rm":         true,
	"fs.mv":         true,
	"fs.chmod":      true,
	"process.run":   true,
	"shell.exec":    true,
}

func toolNeedsConfirmation(tool string) bool {
	return toolsNeedingConfirmation[tool]
}

// ToolNames returns the static tool registry in declaration order, for
// transport bindings (cmd/flycored) that need to register each tool with
// an MCP server SDK independently of the tools/list JSON-RPC path.
func ToolNames() []string {
	names := make([]string, 0, len(toolDescriptors))
	for _, td := range toolDescriptors {
		names = append(names, td.Name)
	}
	return names
}

// ToolDescription returns the static human-readable description for a
// tool name, or "" if unknown.
func ToolDescription(name string) string {
	for _, td := range toolDescriptors {
		if td.Name == name {
			return td.Description
		}
	}
	return ""
}
