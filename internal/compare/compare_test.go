package compare

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFilesEqual(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "0 1\n")
	b := writeFile(t, dir, "b", "0 1\n")

	equal, diag, err := Files(a, b)
	require.NoError(t, err)
	require.True(t, equal)
	require.Nil(t, diag.MismatchPos)
}

func TestFilesMismatchOffset(t *testing.T) {
	dir := t.TempDir()
	expected := writeFile(t, dir, "expected", "0 1\n")
	actual := writeFile(t, dir, "actual", "1 0\n")

	equal, diag, err := Files(expected, actual)
	require.NoError(t, err)
	require.False(t, equal)
	require.NotNil(t, diag.MismatchPos)
	require.EqualValues(t, 0, *diag.MismatchPos)
}

func TestFilesLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	expected := writeFile(t, dir, "expected", "short\n")
	actual := writeFile(t, dir, "actual", "short\nextra\n")

	equal, diag, err := Files(expected, actual)
	require.NoError(t, err)
	require.False(t, equal)
	require.NotNil(t, diag.MismatchPos)
}

func TestFilesLargeEqualAcrossChunks(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", chunkSize+123)
	expected := writeFile(t, dir, "expected", big)
	actual := writeFile(t, dir, "actual", big)

	equal, _, err := Files(expected, actual)
	require.NoError(t, err)
	require.True(t, equal)
}
