package httpapi

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/asfrgrtgd/intcode-judge/internal/judge"
	"github.com/asfrgrtgd/intcode-judge/internal/storage"
	"github.com/asfrgrtgd/intcode-judge/internal/store"
)

const (
	maxArchiveEntries   = 200
	maxArchiveTotalSize = 32 * 1024 * 1024
	maxArchiveFileSize  = 4 * 1024 * 1024
)

// ParseProblemArchive reads a zip problem package and writes its testcase
// files through st, returning the problem metadata ready for
// store.ProblemRepository.CreateWithTestcases. Expected layout (a single
// top-level folder whose name must equal the slug):
//
//	problem.yaml (required)
//	statement.md (required)
//	data/sample/*.in, *.out (is_sample=true)
//	data/secret/*.in, *.out (is_sample=false)
func ParseProblemArchive(st *storage.Store, data []byte) (store.ProblemCreateInput, error) {
	if len(data) == 0 {
		return store.ProblemCreateInput{}, errors.New("archive is empty")
	}
	if len(data) < 4 || !bytes.Equal(data[:4], []byte{'P', 'K', 0x03, 0x04}) {
		return store.ProblemCreateInput{}, errors.New("only zip archives are supported")
	}

	files := map[string][]byte{}
	rootName, err := collectFromZip(data, files)
	if err != nil {
		return store.ProblemCreateInput{}, err
	}
	if rootName == "" {
		return store.ProblemCreateInput{}, errors.New("zip needs a single top-level folder matching slug")
	}
	if len(files) == 0 {
		return store.ProblemCreateInput{}, errors.New("archive has no usable files")
	}

	configBytes, ok := files["problem.yaml"]
	if !ok {
		if stripPrefix(files, normalizeSlug(rootName)+"/") {
			configBytes, ok = files["problem.yaml"]
		}
	}
	if !ok {
		return store.ProblemCreateInput{}, errors.New("problem.yaml not found")
	}

	doc, err := parseProblemYAML(configBytes)
	if err != nil {
		return store.ProblemCreateInput{}, err
	}

	slug := normalizeSlug(doc.Slug)
	if slug == "" {
		return store.ProblemCreateInput{}, errors.New("slug is required (lowercase letters, digits, hyphens)")
	}
	if slug != normalizeSlug(rootName) {
		return store.ProblemCreateInput{}, errors.New("zip top-level folder must match slug")
	}
	stripSlugPrefix(files, slug)

	statement, ok := files["statement.md"]
	if !ok {
		return store.ProblemCreateInput{}, errors.New("statement.md not found")
	}
	if strings.TrimSpace(doc.Title) == "" {
		return store.ProblemCreateInput{}, errors.New("title is required")
	}

	if doc.Limits.TimeMS <= 0 {
		doc.Limits.TimeMS = 2000
	}
	if doc.Limits.MemoryMB <= 0 {
		doc.Limits.MemoryMB = 256
	}

	type bucket struct {
		in, out  []byte
		isSample bool
	}
	buckets := map[string]*bucket{}
	var order []string
	addEntry := func(name string, content []byte, sample bool, prefix string) {
		if !strings.HasPrefix(name, prefix) {
			return
		}
		var key, ext string
		switch {
		case strings.HasSuffix(name, ".in"):
			key = strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".in")
			ext = "in"
		case strings.HasSuffix(name, ".out"):
			key = strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".out")
			ext = "out"
		default:
			return
		}
		bucketKey := prefix + key
		b, ok := buckets[bucketKey]
		if !ok {
			b = &bucket{isSample: sample}
			buckets[bucketKey] = b
			order = append(order, bucketKey)
		}
		if ext == "in" {
			b.in = content
		} else {
			b.out = content
		}
	}
	for name, content := range files {
		addEntry(name, content, true, "data/sample/")
		addEntry(name, content, false, "data/secret/")
	}
	if len(buckets) == 0 {
		return store.ProblemCreateInput{}, errors.New("no testcases found under data/sample or data/secret")
	}
	sort.Strings(order)

	caseNo := 1
	var testcases []store.TestcaseInput
	for _, key := range order {
		b := buckets[key]
		if len(b.in) == 0 || len(b.out) == 0 {
			return store.ProblemCreateInput{}, fmt.Errorf("%s is missing its .in/.out pair", key)
		}
		meta, err := st.SaveSingle(slug, caseNo, bytes.NewReader(b.in), bytes.NewReader(b.out))
		if err != nil {
			return store.ProblemCreateInput{}, fmt.Errorf("save testcase %d: %w", caseNo, err)
		}
		testcases = append(testcases, store.TestcaseInput{
			CaseNo:       caseNo,
			InPath:       meta.InPath,
			OutPath:      meta.OutPath,
			InSizeBytes:  meta.InSizeBytes,
			OutSizeBytes: meta.OutSizeBytes,
			InSHA256:     meta.InSHA256,
			OutSHA256:    meta.OutSHA256,
			IsSample:     b.isSample,
			ScoreWeight:  1,
		})
		caseNo++
	}

	checkerType := judge.CheckerExact
	if doc.Checker.Type == "eps" {
		checkerType = judge.CheckerEps
	}

	return store.ProblemCreateInput{
		Slug:          slug,
		Title:         strings.TrimSpace(doc.Title),
		Statement:     string(statement),
		Difficulty:    "MEDIUM",
		IsSPJ:         false,
		CheckerType:   string(checkerType),
		CheckerEps:    doc.Checker.Eps,
		TimeLimitMs:   doc.Limits.TimeMS,
		MemoryLimitMB: doc.Limits.MemoryMB,
		Testcases:     testcases,
	}, nil
}

type problemDoc struct {
	Slug   string `yaml:"slug"`
	Title  string `yaml:"title"`
	Limits struct {
		TimeMS   int `yaml:"time_ms"`
		MemoryMB int `yaml:"memory_mb"`
	} `yaml:"limits"`
	Checker struct {
		Type string  `yaml:"type"`
		Eps  float64 `yaml:"eps"`
	} `yaml:"checker"`
}

func parseProblemYAML(b []byte) (problemDoc, error) {
	var doc problemDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("problem.yaml is malformed: %w", err)
	}
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Checker.Type = strings.ToLower(strings.TrimSpace(doc.Checker.Type))
	if doc.Checker.Type == "" {
		doc.Checker.Type = "exact"
	}
	if doc.Checker.Type != "exact" && doc.Checker.Type != "eps" {
		return doc, errors.New("checker.type must be exact or eps")
	}
	if doc.Checker.Type == "eps" {
		if doc.Checker.Eps <= 0 {
			return doc, errors.New("checker.eps must be greater than 0")
		}
	} else {
		doc.Checker.Eps = 0
	}
	return doc, nil
}

func collectFromZip(data []byte, files map[string][]byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("cannot open zip: %w", err)
	}
	var total int64
	hasRootLevel := false
	dirRoots := map[string]struct{}{}
	type entry struct {
		name    string
		content []byte
	}
	var entries []entry

	for i, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if i+1 > maxArchiveEntries {
			return "", errors.New("too many entries (limit 200)")
		}
		norm := normalizeArchivePath(f.Name)
		if strings.HasPrefix(norm, "/") || strings.Contains(norm, "../") {
			return "", errors.New("archive contains an unsafe path")
		}
		if f.UncompressedSize64 > maxArchiveFileSize {
			return "", fmt.Errorf("file %s is too large (limit %d bytes)", f.Name, maxArchiveFileSize)
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("cannot open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxArchiveFileSize+1))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("cannot read %s: %w", f.Name, err)
		}
		if int64(len(content)) > maxArchiveFileSize {
			return "", fmt.Errorf("file %s is too large (limit %d bytes)", f.Name, maxArchiveFileSize)
		}
		total += int64(len(content))
		if total > maxArchiveTotalSize {
			return "", errors.New("extracted size too large (limit 32MB)")
		}
		entries = append(entries, entry{name: norm, content: content})
		parts := strings.Split(norm, "/")
		if len(parts) == 1 {
			hasRootLevel = true
		} else if parts[0] != "" {
			dirRoots[parts[0]] = struct{}{}
		}
	}
	if hasRootLevel {
		return "", errors.New("a top-level folder matching slug is required")
	}
	if len(dirRoots) == 0 {
		return "", errors.New("no top-level folder found")
	}
	if len(dirRoots) > 1 {
		return "", errors.New("archive must have exactly one top-level folder")
	}
	var root string
	for k := range dirRoots {
		root = k
	}
	for _, e := range entries {
		name := e.name
		if root != "" && strings.HasPrefix(name, root+"/") {
			name = strings.TrimPrefix(name, root+"/")
		}
		if name == "" {
			continue
		}
		files[name] = e.content
	}
	return root, nil
}

func normalizeArchivePath(p string) string {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "./")
	cleaned = strings.TrimPrefix(cleaned, "/")
	return cleaned
}

func normalizeSlug(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	var b strings.Builder
	lastHyphen := false
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if r == '-' || r == '_' || r == ' ' {
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func stripSlugPrefix(files map[string][]byte, slug string) {
	prefix := slug + "/"
	if _, ok := files["problem.yaml"]; ok {
		return
	}
	if _, ok := files[prefix+"problem.yaml"]; !ok {
		return
	}
	stripPrefix(files, prefix)
}

func stripPrefix(files map[string][]byte, prefix string) bool {
	if _, ok := files[prefix+"problem.yaml"]; !ok {
		return false
	}
	newFiles := make(map[string][]byte, len(files))
	for k, v := range files {
		if !strings.HasPrefix(k, prefix) {
			newFiles[k] = v
			continue
		}
		if nk := strings.TrimPrefix(k, prefix); nk != "" {
			newFiles[nk] = v
		}
	}
	for k, v := range newFiles {
		files[k] = v
	}
	return true
}

// buildProblemTemplateZip returns a sample archive admins can use as an
// import starting point.
func buildProblemTemplateZip() ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	files := []struct{ name, content string }{
		{name: "two-sum/problem.yaml", content: "slug: two-sum\ntitle: \"Two Sum\"\n\nlimits:\n  time_ms: 2000\n  memory_mb: 256\n\nchecker:\n  type: exact\n"},
		{name: "two-sum/statement.md", content: "## Statement\nGiven two integers A and B on one line, print their sum.\n\n## Input\n```\nA B\n```\n\n## Output\n```\nA + B\n```\n"},
		{name: "two-sum/data/sample/1.in", content: "2 3\n"},
		{name: "two-sum/data/sample/1.out", content: "5\n"},
		{name: "two-sum/data/secret/1.in", content: "100 250\n"},
		{name: "two-sum/data/secret/1.out", content: "350\n"},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(f.content)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readAllOrEmpty(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// buildProblemZipFromDB reconstructs a downloadable archive from a
// problem's stored metadata and on-disk testcase files.
func buildProblemZipFromDB(st *storage.Store, detail store.ProblemDetail, cases []store.TestcaseInput) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	write := func(name string, content []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(content)
		return err
	}

	problemYAML := fmt.Sprintf("slug: %s\ntitle: \"%s\"\n\nlimits:\n  time_ms: %d\n  memory_mb: %d\n\nchecker:\n  type: %s\n  eps: %g\n",
		detail.Slug, detail.Title, detail.TimeLimitMs, detail.MemoryLimitMB, detail.CheckerType, detail.CheckerEps)
	if err := write(detail.Slug+"/problem.yaml", []byte(problemYAML)); err != nil {
		return nil, err
	}
	if err := write(detail.Slug+"/statement.md", []byte(detail.Statement)); err != nil {
		return nil, err
	}

	for _, tc := range cases {
		dir := "secret"
		if tc.IsSample {
			dir = "sample"
		}
		inAbs, err := st.Resolve(tc.InPath)
		if err != nil {
			return nil, err
		}
		outAbs, err := st.Resolve(tc.OutPath)
		if err != nil {
			return nil, err
		}
		inContent, err := readAllOrEmpty(inAbs)
		if err != nil {
			return nil, err
		}
		outContent, err := readAllOrEmpty(outAbs)
		if err != nil {
			return nil, err
		}
		name := strconv.Itoa(tc.CaseNo)
		if err := write(fmt.Sprintf("%s/data/%s/%s.in", detail.Slug, dir, name), inContent); err != nil {
			return nil, err
		}
		if err := write(fmt.Sprintf("%s/data/%s/%s.out", detail.Slug, dir, name), outContent); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
