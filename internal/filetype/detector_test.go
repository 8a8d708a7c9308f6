package filetype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/local/lazydoc/internal/pdftest"
)

func TestDetectBytesPDF(t *testing.T) {
	info := New().DetectBytes(pdftest.GenerateUniform(1, 612, 792))
	if !info.IsPDF {
		t.Errorf("IsPDF = false, mime = %s", info.MIMEType)
	}
	if info.Extension != ".pdf" {
		t.Errorf("Extension = %q, want .pdf", info.Extension)
	}
}

func TestDetectBytesNotPDF(t *testing.T) {
	cases := map[string][]byte{
		"text": []byte("just some plain text, nothing binary"),
		"png":  {0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0},
		"zip":  {'P', 'K', 0x03, 0x04, 0, 0, 0, 0},
	}
	for name, data := range cases {
		if info := New().DetectBytes(data); info.IsPDF {
			t.Errorf("%s detected as PDF (%s)", name, info.MIMEType)
		}
	}
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()

	// Content wins over extension: a PDF named .txt is still a PDF.
	path := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(path, pdftest.GenerateUniform(2, 612, 792), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := New().DetectFile(path)
	if err != nil {
		t.Fatalf("DetectFile: %v", err)
	}
	if !info.IsPDF {
		t.Errorf("IsPDF = false, mime = %s", info.MIMEType)
	}

	if _, err := New().DetectFile(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("DetectFile on missing file succeeded")
	}
}
