// Package obslog wires the process-wide logger used by the API, the worker,
// and the judge pipeline's per-case event trail.
package obslog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/asfrgrtgd/intcode-judge/internal/config"
)

// Setup configures log output to both stdout and a file under cfg.LogDir.
// Caller should close the returned io.Closer on shutdown.
func Setup(cfg config.Config, filename string) (io.Closer, error) {
	dir := cfg.LogDir
	if dir == "" {
		dir = "./log"
	}
	if filename == "" {
		filename = "app.log"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	mw := io.MultiWriter(os.Stdout, f)
	log.SetOutput(mw)
	gin.DefaultWriter = mw
	gin.DefaultErrorWriter = mw

	return f, nil
}

// CaseEvent logs one structured judging event in key=value form.
func CaseEvent(stage string, kv map[string]any) {
	line := stage
	for k, v := range kv {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	log.Println(line)
}
