package toolfns

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// SystemInfo reports basic host information.
func SystemInfo(_ context.Context, _ map[string]any) (any, error) {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	if user == "" {
		user = "unknown"
	}

	return map[string]any{
		"os":           runtime.GOOS,
		"architecture": runtime.GOARCH,
		"cpus":         runtime.NumCPU(),
		"go_version":   runtime.Version(),
		"hostname":     hostname,
		"user":         user,
		"time":         time.Now().Format("2006-01-02 15:04:05"),
	}, nil
}

// CurrentDirectory reports the process working directory.
func CurrentDirectory(_ context.Context, _ map[string]any) (any, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(wd)
	if err != nil {
		abs = wd
	}

	return map[string]any{
		"current_directory": wd,
		"absolute_path":     abs,
	}, nil
}
