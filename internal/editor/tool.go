// Package editor invokes external AI code-editing tools as child processes.
package editor

import (
	"fmt"
	"sort"
	"strings"
)

// Invocation holds everything a tool needs to build its command line
type Invocation struct {
	Prompt     string   // The prompt text
	PromptPath string   // The file the prompt was persisted to, streamed to the child's stdin
	Paths      []string // Target files and directories
}

// Tool describes how to run a particular editing tool non-interactively
type Tool interface {
	// Name returns the tool's short name, e.g. "aider"
	Name() string
	// Command returns the binary, arguments, and extra environment variables for an invocation
	Command(inv Invocation) (binary string, args []string, env []string)
}

// Aider runs aider without auto-commit and with every confirmation answered yes
type Aider struct {
	Binary string
}

func (a Aider) Name() string { return "aider" }

func (a Aider) Command(inv Invocation) (string, []string, []string) {
	binary := a.Binary
	if binary == "" {
		binary = "aider"
	}
	args := []string{"--no-auto-commit", "--yes"}
	args = append(args, inv.Paths...)
	return binary, args, nil
}

// ClaudeCode runs the Claude Code CLI in print mode. It takes no file arguments, so the target paths are listed at
// the top of the prompt instead
type ClaudeCode struct {
	Binary string
}

func (c ClaudeCode) Name() string { return "claude" }

func (c ClaudeCode) Command(inv Invocation) (string, []string, []string) {
	binary := c.Binary
	if binary == "" {
		binary = "claude"
	}
	prompt := inv.Prompt
	if len(inv.Paths) > 0 {
		var sb strings.Builder
		sb.WriteString("Files to modify:\n")
		for _, p := range inv.Paths {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		sb.WriteString(prompt)
		prompt = sb.String()
	}
	env := []string{
		"NODE_NO_READLINE=1",
		"INK_DISABLE_SET_RAW_MODE=true",
	}
	return binary, []string{"-p", prompt}, env
}

var tools = map[string]func(binary string) Tool{
	"aider":  func(binary string) Tool { return Aider{Binary: binary} },
	"claude": func(binary string) Tool { return ClaudeCode{Binary: binary} },
}

// New returns the named tool. If binary is non-empty it replaces the tool's default executable
func New(name string, binary string) (Tool, error) {
	newTool, ok := tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool '%s', expected one of: %s", name, strings.Join(Names(), ", "))
	}
	return newTool(binary), nil
}

// Names returns the names of all supported tools
func Names() []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
