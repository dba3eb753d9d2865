package screenshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/agentbrowser/viewer/internal/executor"
)

const dataURIPrefix = "data:image/png;base64,"

// Capturer grabs screenshots through the browser CLI. Every failure
// degrades to an empty string; callers treat that as "no screenshot this
// round", never as an error to propagate.
type Capturer struct {
	runner executor.Runner
	log    *zap.SugaredLogger
}

// NewCapturer creates a Capturer backed by the given runner.
func NewCapturer(runner executor.Runner, log *zap.SugaredLogger) *Capturer {
	return &Capturer{runner: runner, log: log}
}

// Capture asks the CLI to write a screenshot to a temp file, reads it
// back as a base64 data URI, and schedules a best-effort cleanup of the
// temp file. Returns "" if anything fails along the way.
func (c *Capturer) Capture(ctx context.Context) string {
	tmpPath := fmt.Sprintf("%s/agent-browser-screenshot-%d.png",
		os.TempDir(), time.Now().UnixMilli())

	c.runner.Execute(ctx, fmt.Sprintf("screenshot %s", tmpPath))

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return ""
	}

	// Temp file leakage is acceptable; never block or retry on cleanup.
	go func() {
		if err := os.Remove(tmpPath); err != nil {
			c.log.Debugw("temp screenshot cleanup failed", "path", tmpPath, "error", err)
		}
	}()

	return dataURIPrefix + base64.StdEncoding.EncodeToString(data)
}
