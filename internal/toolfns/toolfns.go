// Package toolfns holds the built-in callables the registry binds tool
// declarations to. Each handler takes the decoded argument object and
// returns a free-form result.
package toolfns

import (
	"github.com/clawinfra/toolclaw/internal/registry"
)

// Catalog returns the full handler table keyed by the names used in
// tools.toml declarations.
func Catalog() map[string]registry.Handler {
	return map[string]registry.Handler{
		"calculate":         Calculate,
		"gcd":               GCD,
		"text_stats":        TextStats,
		"text_transform":    TextTransform,
		"text_hash":         TextHash,
		"system_info":       SystemInfo,
		"current_directory": CurrentDirectory,
		"list_directory":    ListDirectory,
		"read_file":         ReadFile,
	}
}

// stringArg extracts a string argument with an optional default.
func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

// intArg extracts an integer argument. JSON numbers decode as float64.
func intArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
