//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func ffprobe(path string, args ...string) (string, error) {
	args = append(append([]string{"-v", "error"}, args...), path)
	b, err := exec.Command("ffprobe", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffprobe %s: %w\n%s", path, err, string(b))
	}
	return strings.TrimSpace(string(b)), nil
}

func probeDurationSeconds(path string) (float64, error) {
	out, err := ffprobe(path, "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1")
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", out, err)
	}
	return sec, nil
}

// probeSize returns the width and height of the first video stream.
func probeSize(path string) (int, int, error) {
	out, err := ffprobe(path, "-select_streams", "v:0", "-show_entries", "stream=width,height", "-of", "csv=p=0:s=x")
	if err != nil {
		return 0, 0, err
	}
	var w, h int
	if _, err := fmt.Sscanf(out, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("parse size %q: %w", out, err)
	}
	return w, h, nil
}
