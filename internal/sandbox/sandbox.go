// Package sandbox spawns and supervises candidate processes under CPU,
// memory, core-dump, and open-file limits with guaranteed termination. It
// is the in-process replacement for an external sandboxing daemon: the
// judge orchestrator calls it directly instead of delegating over HTTP.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Status classifies how a sandboxed run ended.
type Status string

const (
	StatusOK  Status = "OK"
	StatusTLE Status = "TLE"
	StatusRE  Status = "RE"
)

// Limits bounds one run.
type Limits struct {
	Timeout     time.Duration // wall-clock limit
	MemoryMB    int           // address-space limit, megabytes
	OutputLimit int           // in-memory stdout cap, bytes (Run only)
}

// Result is the outcome of Run.
type Result struct {
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int
}

// StreamResult is the outcome of RunStream.
type StreamResult struct {
	Status   Status
	Stderr   string
	ExitCode int
}

func setupSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// applyPostStartLimits applies rlimits to the child via prlimit(2) right
// after Start returns. Go's os/exec has no pre-exec hook without cgo, so
// there is a brief window before limits land; acceptable for a judge whose
// workload is a compiled test binary rather than something racing the
// limiter.
func applyPostStartLimits(pid int, l Limits) {
	cpuSeconds := uint64(l.Timeout/time.Second) + 1
	_ = unix.Prlimit(pid, unix.RLIMIT_CPU, &unix.Rlimit{Cur: cpuSeconds, Max: cpuSeconds}, nil)

	memBytes := uint64(l.MemoryMB) * 1024 * 1024
	_ = unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{Cur: memBytes, Max: memBytes}, nil)
	_ = unix.Prlimit(pid, unix.RLIMIT_DATA, &unix.Rlimit{Cur: memBytes, Max: memBytes}, nil)

	_ = unix.Prlimit(pid, unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0}, nil)

	const maxOpenFiles = 64
	_ = unix.Prlimit(pid, unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: maxOpenFiles, Max: maxOpenFiles}, nil)
}

// killGroup sends SIGKILL to the process group rooted at pid and reaps it.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	_, _ = cmd.Process.Wait()
}

// Run executes cmdVec with stdin and limits, collecting bounded stdout in
// memory. Used for mode=custom and for SPJ checker runs; compile steps do
// not go through it.
func Run(ctx context.Context, cmdVec []string, stdin string, l Limits) (Result, error) {
	if len(cmdVec) == 0 {
		return Result{}, fmt.Errorf("empty command vector")
	}
	runCtx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cmdVec[0], cmdVec[1:]...)
	setupSysProcAttr(cmd)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{Status: StatusRE, Stderr: err.Error()}, nil
	}
	applyPostStartLimits(cmd.Process.Pid, l)

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		killGroup(cmd)
		return Result{Status: StatusTLE}, nil
	}

	out := stdout.String()
	errOut := stderr.String()
	if l.OutputLimit > 0 && len(out) > l.OutputLimit {
		out = out[:l.OutputLimit]
		errOut += " output exceeded limit"
	}

	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return Result{Status: StatusRE, Stdout: out, Stderr: errOut, ExitCode: exitCode}, nil
	}
	return Result{Status: StatusOK, Stdout: out, Stderr: errOut, ExitCode: 0}, nil
}

// RunStream executes cmdVec with stdin read from stdinPath and stdout
// redirected directly to stdoutPath, so neither the candidate nor the
// judge holds the output in RAM. Used for graded cases.
func RunStream(ctx context.Context, cmdVec []string, stdinPath, stdoutPath string, l Limits) (StreamResult, error) {
	if len(cmdVec) == 0 {
		return StreamResult{}, fmt.Errorf("empty command vector")
	}

	in, err := os.Open(stdinPath)
	if err != nil {
		return StreamResult{Status: StatusRE, Stderr: fmt.Sprintf("open stdin: %v", err)}, nil
	}
	defer in.Close()

	out, err := os.Create(stdoutPath)
	if err != nil {
		return StreamResult{Status: StatusRE, Stderr: fmt.Sprintf("open stdout: %v", err)}, nil
	}
	defer out.Close()

	runCtx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cmdVec[0], cmdVec[1:]...)
	setupSysProcAttr(cmd)
	cmd.Stdin = in
	cmd.Stdout = out

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return StreamResult{Status: StatusRE, Stderr: err.Error()}, nil
	}
	applyPostStartLimits(cmd.Process.Pid, l)

	waitErr := cmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		killGroup(cmd)
		return StreamResult{Status: StatusTLE}, nil
	}

	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return StreamResult{Status: StatusRE, Stderr: stderr.String(), ExitCode: exitCode}, nil
	}
	return StreamResult{Status: StatusOK, Stderr: stderr.String(), ExitCode: 0}, nil
}

// HasMemorySignature reports whether stderr text indicates the candidate
// hit the memory limit, used by the orchestrator to promote RE to MLE.
func HasMemorySignature(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "memory") || strings.Contains(lower, "cannot allocate memory")
}
