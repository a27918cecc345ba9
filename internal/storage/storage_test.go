package storage

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"two-string":  "two-string",
		"../../evil":  "_.._.._evil",
		"a b/c":       "a_b_c",
		"":            "unknown",
		"日本語":     "___",
	}
	for in, want := range cases {
		if got := safeName(in); got != want {
			t.Fatalf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveSingleIntegrity(t *testing.T) {
	root := t.TempDir()
	s := New(root, 200<<20)

	in := strings.NewReader("4\n2 7 11 15\n9\n")
	out := strings.NewReader("0 1\n")
	meta, err := s.SaveSingle("two-string", 1, in, out)
	require.NoError(t, err)

	absIn, err := s.Resolve(meta.InPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(absIn, root))

	wantSHA := sha256.Sum256([]byte("0 1\n"))
	require.Equal(t, hex.EncodeToString(wantSHA[:]), meta.OutSHA256)
	require.EqualValues(t, len("0 1\n"), meta.OutSizeBytes)
}

func TestResolveRejectsEscape(t *testing.T) {
	s := New(t.TempDir(), 200<<20)
	_, err := s.Resolve("../../etc/passwd")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestImportArchivePairsAndDuplicates(t *testing.T) {
	data := buildZip(t, map[string]string{
		"1.in":        "a\n",
		"1.out":       "b\n",
		"2.in":        "c\n",
		"sub/2.in":    "dup-in\n",
		"sub/2.out":   "dup-out\n",
		"3.in":        "missing-out\n",
	})
	s := New(t.TempDir(), 200<<20)
	result, err := s.ImportArchive("p", bytes.NewReader(data), int64(len(data)), StrategyOverwrite)
	require.NoError(t, err)

	require.Len(t, result.Imported, 1)
	require.Equal(t, 1, result.Imported[0].CaseNo)

	reasons := map[int]string{}
	for _, f := range result.Failed {
		reasons[f.CaseNo] = f.Reason
	}
	require.Equal(t, "duplicate", reasons[2])
	require.Equal(t, "missing pair", reasons[3])
}

func TestImportArchiveRejectsTraversal(t *testing.T) {
	data := buildZip(t, map[string]string{"../evil.in": "x"})
	s := New(t.TempDir(), 200<<20)
	_, err := s.ImportArchive("p", bytes.NewReader(data), int64(len(data)), StrategyOverwrite)
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestImportArchiveTooLarge(t *testing.T) {
	data := buildZip(t, map[string]string{"1.in": strings.Repeat("x", 1024), "1.out": "y"})
	s := New(t.TempDir(), 10)
	_, err := s.ImportArchive("p", bytes.NewReader(data), int64(len(data)), StrategyOverwrite)
	require.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestImportArchiveSkipStrategy(t *testing.T) {
	s := New(t.TempDir(), 200<<20)
	_, err := s.SaveSingle("p", 1, strings.NewReader("old-in"), strings.NewReader("old-out"))
	require.NoError(t, err)

	data := buildZip(t, map[string]string{"1.in": "new-in", "1.out": "new-out"})
	result, err := s.ImportArchive("p", bytes.NewReader(data), int64(len(data)), StrategySkip)
	require.NoError(t, err)
	require.Empty(t, result.Imported)

	inPath, _, err := s.CasePaths("p", 1)
	require.NoError(t, err)
	require.Equal(t, filepath.Base(inPath), "1.in")
}
