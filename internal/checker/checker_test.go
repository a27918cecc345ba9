package checker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asfrgrtgd/intcode-judge/internal/sandbox"
)

func TestEps(t *testing.T) {
	require.True(t, Eps("1.0001 2.0", "1.0 2.0", 0.001))
	require.False(t, Eps("1.1 2.0", "1.0 2.0", 0.001))
	require.False(t, Eps("1.0", "1.0 2.0", 0.001))
	require.False(t, Eps("abc", "1.0", 0.001))
}

func TestRunSPJAcceptsSymmetricIndices(t *testing.T) {
	checker := `def check(input_text, user_output):
    expected = {"0", "1"}
    got = set(user_output.split())
    return got == expected
`
	res, err := RunSPJ(context.Background(), checker, "4\n2 7 11 15\n9\n", "1 0\n")
	require.NoError(t, err)
	require.True(t, res.Pass)
	require.Empty(t, res.Error)
}

func TestRunSPJRejectsWrongAnswer(t *testing.T) {
	checker := `def check(input_text, user_output):
    return user_output.strip() == "0 1"
`
	res, err := RunSPJ(context.Background(), checker, "", "9 9\n")
	require.NoError(t, err)
	require.False(t, res.Pass)
	require.Empty(t, res.Error)
}

func TestRunSPJSurfacesCheckerCrash(t *testing.T) {
	checker := `def check(input_text, user_output):
    raise ValueError("boom")
`
	res, err := RunSPJ(context.Background(), checker, "", "")
	require.NoError(t, err)
	require.False(t, res.Pass)
	require.Contains(t, res.Error, "boom")
}

func TestRunSPJMissingCheckFunction(t *testing.T) {
	res, err := RunSPJ(context.Background(), "x = 1\n", "", "")
	require.NoError(t, err)
	require.False(t, res.Pass)
	require.NotEmpty(t, res.Error)
}

func TestRunSPJRejectsTimeoutChecker(t *testing.T) {
	checker := `import time
def check(input_text, user_output):
    time.sleep(10)
    return True
`
	res, err := RunSPJ(context.Background(), checker, "", "")
	require.NoError(t, err)
	require.False(t, res.Pass)
	require.NotEmpty(t, res.Error)
}

func TestClassifyResultRejectsLaunchFailure(t *testing.T) {
	res := classifyResult(sandbox.Result{Status: sandbox.StatusRE, Stderr: `exec: "python3": executable file not found in $PATH`})
	require.False(t, res.Pass)
	require.Contains(t, res.Error, "python3")
}

func TestClassifyResultRejectsTimeout(t *testing.T) {
	res := classifyResult(sandbox.Result{Status: sandbox.StatusTLE})
	require.False(t, res.Pass)
	require.Equal(t, "SPJ timed out", res.Error)
}

func TestClassifyResultAcceptsCleanPass(t *testing.T) {
	res := classifyResult(sandbox.Result{Status: sandbox.StatusOK, ExitCode: 0})
	require.True(t, res.Pass)
	require.Empty(t, res.Error)
}

func TestClassifyResultRejectsCleanFail(t *testing.T) {
	res := classifyResult(sandbox.Result{Status: sandbox.StatusOK, ExitCode: 1})
	require.False(t, res.Pass)
	require.Empty(t, res.Error)
}
