package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckAudioTools reports the ffmpeg and ffprobe binaries the stitcher will
// execute. Configured values may be bare names resolved through PATH or
// explicit paths, which must point at an executable file.
func CheckAudioTools(ffmpegCommand, ffprobeCommand string) []Status {
	return []Status{
		resolveTool("FFmpeg", ffmpegCommand, "Required for stitching episodes"),
		resolveTool("FFprobe", ffprobeCommand, "Required for clip durations"),
	}
}

func resolveTool(name, command, description string) Status {
	result := Status{Name: name, Description: description}
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		result.Detail = "command not configured"
		return result
	}
	result.Command = cmd

	if strings.ContainsRune(cmd, filepath.Separator) {
		info, err := os.Stat(cmd)
		if err != nil {
			result.Detail = fmt.Sprintf("binary %q not found", cmd)
			return result
		}
		if !isExecutable(info) {
			result.Detail = fmt.Sprintf("%q is not executable", cmd)
			return result
		}
		result.Available = true
		return result
	}

	resolved, err := exec.LookPath(cmd)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", cmd)
		return result
	}
	result.Command = resolved
	result.Available = true
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
