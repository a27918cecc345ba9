package httpapi

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func TestBuildProblemTemplateZip(t *testing.T) {
	data, err := buildProblemTemplateZip()
	if err != nil {
		t.Fatalf("buildProblemTemplateZip error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip reader error: %v", err)
	}

	expected := map[string]func(string) bool{
		"two-sum/problem.yaml": func(s string) bool {
			return strings.Contains(s, "slug: two-sum") && strings.Contains(s, `title: "Two Sum"`)
		},
		"two-sum/statement.md": func(s string) bool {
			return strings.Contains(s, "Given two integers A and B")
		},
		"two-sum/data/sample/1.in":  func(s string) bool { return s == "2 3\n" },
		"two-sum/data/sample/1.out": func(s string) bool { return s == "5\n" },
		"two-sum/data/secret/1.in":  func(s string) bool { return s == "100 250\n" },
		"two-sum/data/secret/1.out": func(s string) bool { return s == "350\n" },
	}

	for _, f := range zr.File {
		verify, ok := expected[f.Name]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		rc.Close()
		if !verify(buf.String()) {
			t.Fatalf("content mismatch for %s", f.Name)
		}
		delete(expected, f.Name)
	}

	if len(expected) != 0 {
		t.Fatalf("missing files: %v", mapKeys(expected))
	}
}

func mapKeys(m map[string]func(string) bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestNormalizeSlug(t *testing.T) {
	cases := map[string]string{
		"Two Sum":     "two-sum",
		"  two_sum  ": "two-sum",
		"a--b":        "a-b",
		"":            "",
	}
	for in, want := range cases {
		if got := normalizeSlug(in); got != want {
			t.Fatalf("normalizeSlug(%q) = %q, want %q", in, got, want)
		}
	}
}
