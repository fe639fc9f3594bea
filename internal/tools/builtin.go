package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// RegisterBuiltins adds the built-in tool set to a registry.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(NewCurrentTimeTool())
	r.MustRegister(NewReadFileTool())
	r.MustRegister(NewListDirectoryTool())
}

// CurrentTimeTool reports the local wall-clock time.
type CurrentTimeTool struct{}

func NewCurrentTimeTool() *CurrentTimeTool { return &CurrentTimeTool{} }

func (t *CurrentTimeTool) Descriptor() Descriptor {
	return Descriptor{
		Name:           "current_time",
		DisplayName:    "Current Time",
		Description:    "Returns the current local date and time.",
		Parameters:     nil,
		Parallelizable: true,
	}
}

func (t *CurrentTimeTool) Execute(_ context.Context, _ map[string]any) (any, error) {
	return time.Now().Format(time.RFC1123), nil
}

// ReadFileTool reads a text file from the local filesystem.
type ReadFileTool struct {
	// MaxFileSize bounds how large a file the tool will return.
	MaxFileSize int64
}

func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{MaxFileSize: 1 << 20} // 1 MB
}

func (t *ReadFileTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "read_file",
		DisplayName: "File Reader",
		Description: "Reads a text file from the local filesystem and returns its content.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file to read.", Required: true},
		},
		Parallelizable: true,
	}
}

func (t *ReadFileTool) Execute(_ context.Context, params map[string]any) (any, error) {
	path, ok := params["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file; use list_directory instead", path)
	}
	if info.Size() > t.MaxFileSize {
		return nil, fmt.Errorf("file too large (%d bytes, max %d)", info.Size(), t.MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// ListDirectoryTool lists the entries of a directory.
type ListDirectoryTool struct{}

func NewListDirectoryTool() *ListDirectoryTool { return &ListDirectoryTool{} }

func (t *ListDirectoryTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "list_directory",
		DisplayName: "Directory Lister",
		Description: "Lists the entries of a directory on the local filesystem. Directories are suffixed with '/'.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the directory. Defaults to the current directory.", Required: false},
		},
		Parallelizable: true,
	}
}

func (t *ListDirectoryTool) Execute(_ context.Context, params map[string]any) (any, error) {
	path := "."
	if p, ok := params["path"].(string); ok && p != "" {
		path = p
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}
