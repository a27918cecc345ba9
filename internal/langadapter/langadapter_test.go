package langadapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestForUnsupportedLanguage(t *testing.T) {
	_, err := For("rust")
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestPython3CompileWritesScript(t *testing.T) {
	a, err := For("python3")
	require.NoError(t, err)

	dir := t.TempDir()
	res, err := a.Compile(context.Background(), "print(input())", dir, 15*time.Second)
	require.NoError(t, err)
	require.Empty(t, res.CompileErr)
	require.Equal(t, []string{"python3", dir + "/main.py"}, res.RunArgs)
}

func TestCpp17CompileSyntaxError(t *testing.T) {
	a, err := For("cpp17")
	require.NoError(t, err)

	dir := t.TempDir()
	res, err := a.Compile(context.Background(), "int main( {", dir, 15*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, res.CompileErr)
	require.Empty(t, res.RunArgs)
}
