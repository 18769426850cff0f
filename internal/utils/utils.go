package utils

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose the traceback if a model worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// errOut is swapped in tests.
var errOut io.Writer = os.Stderr

// ShowError prints the formatted error box without exiting.
// Python logs are dumped when a SafeCommand with captured output is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(errOut, "\n---------------------------------------------------------\n")
	fmt.Fprintf(errOut, "🚨 BIOGATE ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(errOut, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(errOut, "\nPYTHON WORKER LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(errOut, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for unrecoverable startup failures
// (missing model artifacts, unreachable database).
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Vector Math ---

// CosineDist returns 1 - cos(a, b). Zero or empty vectors are maximally distant (1.0).
func CosineDist(a, b []float64) float64 {
	var dot, sumA, sumB float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += a[i] * b[i]
		sumA += a[i] * a[i]
		sumB += b[i] * b[i]
	}
	if sumA == 0 || sumB == 0 {
		return 1.0
	}
	return 1.0 - (dot / (math.Sqrt(sumA) * math.Sqrt(sumB)))
}

// Clamp01 bounds v to [0, 1]. NaN stays NaN so threshold checks still reject it.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
