package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"feedcaster/internal/config"
	"feedcaster/internal/deps"
)

// HealthChecker is a remote endpoint that can verify its credentials cheaply.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// CheckGeneration verifies that the script-generation endpoint is reachable
// and the key is valid. It uses a 30-second timeout and a single request.
func CheckGeneration(ctx context.Context, cfg *config.Config, client HealthChecker) Result {
	name := "Generation (" + cfg.Generation.Provider + ")"
	if strings.TrimSpace(cfg.Generation.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	if client == nil {
		return Result{Name: name, Detail: "client not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (model %s)", client.Name(), cfg.Generation.Model)}
}

// CheckSpeech validates the speech endpoint settings. Synthesis is billed per
// character so no request is sent.
func CheckSpeech(cfg *config.Config) Result {
	const name = "Speech"
	if strings.TrimSpace(cfg.Speech.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s, %s)", cfg.Speech.BaseURL, cfg.Speech.Model, cfg.Speech.Format)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCreatableDirectory passes when path is an accessible directory or can
// be created under its nearest existing ancestor.
func CheckCreatableDirectory(name, path string) Result {
	if _, err := os.Stat(path); err == nil {
		return CheckDirectoryAccess(name, path)
	}
	ancestor := filepath.Dir(path)
	for {
		if _, err := os.Stat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing parent)", path)}
		}
		ancestor = parent
	}
	res := CheckDirectoryAccess(name, ancestor)
	if !res.Passed {
		return res
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckSystemDeps evaluates the external binaries the pipeline executes.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckAudioTools(cfg.FFmpegBinary(), cfg.FFprobeBinary())
}

func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
