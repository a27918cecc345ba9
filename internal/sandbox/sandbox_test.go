package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunOK(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/cat"}, "hello\n", Limits{
		Timeout: 2 * time.Second, MemoryMB: 64, OutputLimit: 1000,
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Equal(t, "hello\n", res.Stdout)
}

func TestRunTLE(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/sleep", "5"}, "", Limits{
		Timeout: 500 * time.Millisecond, MemoryMB: 64,
	})
	require.NoError(t, err)
	require.Equal(t, StatusTLE, res.Status)
}

func TestRunOutputTruncation(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/cat"}, "0123456789", Limits{
		Timeout: 2 * time.Second, MemoryMB: 64, OutputLimit: 5,
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Stdout, 5)
	require.Contains(t, res.Stderr, "output exceeded limit")
}

func TestRunStreamRedirectsStdout(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.txt")
	outPath := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(inPath, []byte("case data\n"), 0o644))

	res, err := RunStream(context.Background(), []string{"/bin/cat"}, inPath, outPath, Limits{
		Timeout: 2 * time.Second, MemoryMB: 64,
	})
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "case data\n", string(got))
}

func TestRunNonZeroExitIsRE(t *testing.T) {
	res, err := Run(context.Background(), []string{"/bin/false"}, "", Limits{
		Timeout: 2 * time.Second, MemoryMB: 64,
	})
	require.NoError(t, err)
	require.Equal(t, StatusRE, res.Status)
}

func TestHasMemorySignature(t *testing.T) {
	require.True(t, HasMemorySignature("std::bad_alloc: cannot allocate memory"))
	require.True(t, HasMemorySignature("Memory exhausted"))
	require.False(t, HasMemorySignature("segmentation fault"))
}
