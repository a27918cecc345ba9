// Package compare implements the streaming byte-exact output comparator.
package compare

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

const chunkSize = 64 * 1024
const previewLimit = 200

// Diagnostic describes a comparison outcome.
type Diagnostic struct {
	ExpectedPreview string
	ActualPreview   string
	MismatchPos     *int64 // byte offset of the first differing chunk, nil when equal
}

func readPreview(path string, limit int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, limit)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	return string(buf[:n]), nil
}

// Files streams expected and actual in parallel 64 KiB chunks and reports
// byte-exact equality, never loading either file fully into memory.
func Files(expectedPath, actualPath string) (bool, Diagnostic, error) {
	expectedPreview, err := readPreview(expectedPath, previewLimit)
	if err != nil {
		return false, Diagnostic{}, fmt.Errorf("read expected preview: %w", err)
	}
	actualPreview, err := readPreview(actualPath, previewLimit)
	if err != nil {
		return false, Diagnostic{}, fmt.Errorf("read actual preview: %w", err)
	}

	fExp, err := os.Open(expectedPath)
	if err != nil {
		return false, Diagnostic{}, fmt.Errorf("open expected: %w", err)
	}
	defer fExp.Close()
	fAct, err := os.Open(actualPath)
	if err != nil {
		return false, Diagnostic{}, fmt.Errorf("open actual: %w", err)
	}
	defer fAct.Close()

	bufExp := make([]byte, chunkSize)
	bufAct := make([]byte, chunkSize)
	var offset int64

	for {
		nExp, errExp := io.ReadFull(fExp, bufExp)
		nAct, errAct := io.ReadFull(fAct, bufAct)
		if errExp != nil && errExp != io.EOF && errExp != io.ErrUnexpectedEOF {
			return false, Diagnostic{}, fmt.Errorf("read expected: %w", errExp)
		}
		if errAct != nil && errAct != io.EOF && errAct != io.ErrUnexpectedEOF {
			return false, Diagnostic{}, fmt.Errorf("read actual: %w", errAct)
		}

		if nExp == 0 && nAct == 0 {
			break
		}
		if !bytes.Equal(bufExp[:nExp], bufAct[:nAct]) {
			pos := offset
			return false, Diagnostic{
				ExpectedPreview: expectedPreview,
				ActualPreview:   actualPreview,
				MismatchPos:     &pos,
			}, nil
		}
		offset += int64(nExp)

		expDone := errExp == io.EOF || errExp == io.ErrUnexpectedEOF
		actDone := errAct == io.EOF || errAct == io.ErrUnexpectedEOF
		if expDone != actDone {
			pos := offset
			return false, Diagnostic{
				ExpectedPreview: expectedPreview,
				ActualPreview:   actualPreview,
				MismatchPos:     &pos,
			}, nil
		}
		if expDone && actDone {
			break
		}
	}

	return true, Diagnostic{
		ExpectedPreview: expectedPreview,
		ActualPreview:   actualPreview,
	}, nil
}
