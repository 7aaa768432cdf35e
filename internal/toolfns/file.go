package toolfns

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxReadChars caps how much file content read_file returns inline.
const maxReadChars = 1000

// ListDirectory lists the entries of a directory with type, size, and
// modification time.
func ListDirectory(_ context.Context, args map[string]any) (any, error) {
	path := stringArg(args, "path", ".")

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path %q does not exist", path)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"name": entry.Name(),
			"type": "file",
		}
		if entry.IsDir() {
			item["type"] = "directory"
		}
		if fi, err := entry.Info(); err == nil {
			if !entry.IsDir() {
				item["size"] = fi.Size()
			}
			item["modified"] = fi.ModTime().Format("2006-01-02 15:04")
		}
		items = append(items, item)
	}

	return map[string]any{"path": path, "items": items}, nil
}

// ReadFile returns the content of a text file, truncated past
// maxReadChars.
func ReadFile(_ context.Context, args map[string]any) (any, error) {
	path := stringArg(args, "filepath", "")
	if path == "" {
		return nil, fmt.Errorf("filepath is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %q does not exist", path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%q is not a file", filepath.Clean(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := string(data)
	truncated := content
	if len([]rune(content)) > maxReadChars {
		truncated = string([]rune(content)[:maxReadChars]) + "..."
	}

	return map[string]any{
		"filepath": path,
		"size":     len(content),
		"lines":    len(strings.Split(content, "\n")),
		"content":  truncated,
	}, nil
}
