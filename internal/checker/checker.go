// Package checker hosts problem-supplied special-judge (SPJ) checkers
// under the sandboxed runner, plus the eps built-in checker variant
// selectable by problem metadata (the exact variant is internal/compare's
// streaming byte comparator).
package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/asfrgrtgd/intcode-judge/internal/sandbox"
)

const checkerTimeout = 2 * time.Second

// wrapper mirrors the original checker harness: load the problem's checker
// module, call check(input, user_output), and translate the boolean result
// (or an exception) into an exit code the host can interpret without
// parsing stdout.
const wrapper = `import importlib.util, json, sys
from pathlib import Path

def main():
    target = Path(sys.argv[1])
    spec = importlib.util.spec_from_file_location("checker", target)
    mod = importlib.util.module_from_spec(spec)
    spec.loader.exec_module(mod)
    if not hasattr(mod, "check"):
        sys.exit(2)
    payload = json.loads(sys.stdin.read())
    input_str = payload.get("input", "")
    user_output = payload.get("user_output", "")
    try:
        ok = bool(mod.check(input_str, user_output))
        sys.exit(0 if ok else 1)
    except Exception as exc:
        sys.stderr.write(str(exc))
        sys.exit(2)

if __name__ == "__main__":
    main()
`

// Result is the outcome of a checker run.
type Result struct {
	Pass  bool
	Error string // non-empty only for checker infrastructure errors (exit code 2+)
}

// RunSPJ spawns checkerSource as a python3 module inside a fresh temp
// directory, passing {"input":..., "user_output":...} on stdin, and
// interprets the exit code: 0 pass, 1 fail, anything else is a checker
// error. The temp directory is removed on every exit path.
func RunSPJ(ctx context.Context, checkerSource, inputText, userOutput string) (Result, error) {
	dir, err := os.MkdirTemp("", "spj_")
	if err != nil {
		return Result{}, fmt.Errorf("create checker scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	checkerPath := filepath.Join(dir, "checker.py")
	wrapperPath := filepath.Join(dir, "runner.py")
	if err := os.WriteFile(checkerPath, []byte(checkerSource), 0o644); err != nil {
		return Result{}, fmt.Errorf("write checker source: %w", err)
	}
	if err := os.WriteFile(wrapperPath, []byte(wrapper), 0o644); err != nil {
		return Result{}, fmt.Errorf("write checker wrapper: %w", err)
	}

	stdin, err := json.Marshal(map[string]string{"input": inputText, "user_output": userOutput})
	if err != nil {
		return Result{}, fmt.Errorf("marshal checker stdin: %w", err)
	}

	res, err := sandbox.Run(ctx, []string{"python3", wrapperPath, checkerPath}, string(stdin), sandbox.Limits{
		Timeout:     checkerTimeout,
		MemoryMB:    256,
		OutputLimit: 4096,
	})
	if err != nil {
		return Result{}, err
	}

	return classifyResult(res), nil
}

// classifyResult turns a sandboxed checker run into a verdict. ExitCode is
// meaningless unless the checker actually reached an exit(): a sandbox
// timeout (sandbox.StatusTLE) or an exec/launch failure (sandbox.StatusRE
// with the process never starting) both leave ExitCode at its Go zero value,
// which must not be read as "exit 0".
func classifyResult(res sandbox.Result) Result {
	if res.Status != sandbox.StatusOK && res.ExitCode == 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			if res.Status == sandbox.StatusTLE {
				msg = "SPJ timed out"
			} else {
				msg = "SPJ runtime error"
			}
		}
		return Result{Pass: false, Error: msg}
	}

	switch res.ExitCode {
	case 0:
		return Result{Pass: true}
	case 1:
		return Result{Pass: false}
	default:
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "SPJ runtime error"
		}
		return Result{Pass: false, Error: msg}
	}
}

// Eps compares whitespace-separated float tokens within an absolute
// epsilon; token counts must match.
func Eps(actual, expected string, eps float64) bool {
	aa := strings.Fields(actual)
	bb := strings.Fields(expected)
	if len(aa) != len(bb) {
		return false
	}
	for i := range aa {
		x, err1 := strconv.ParseFloat(aa[i], 64)
		y, err2 := strconv.ParseFloat(bb[i], 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if math.Abs(x-y) > eps {
			return false
		}
	}
	return true
}
