// Package pdftest generates minimal, structurally valid PDF files for
// exercising the decode path without fixture binaries. The output uses a
// classic cross-reference table so any conforming parser can locate the
// page tree.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
)

// PageSpec describes one generated page. A non-positive Width or Height
// omits the page's own MediaBox so it inherits the document default, which
// is how real-world producers often emit uniform documents.
type PageSpec struct {
	Width  float64
	Height float64
	Rotate int
}

// Default MediaBox placed on the page tree root, inherited by pages that
// do not declare their own.
const (
	DefaultWidth  = 595.0
	DefaultHeight = 842.0
)

// Generate builds a complete PDF with the given pages.
func Generate(pages []PageSpec) []byte {
	var body bytes.Buffer
	offsets := make([]int, 0, len(pages)+3)

	body.WriteString("%PDF-1.4\n")

	addObj := func(s string) {
		offsets = append(offsets, body.Len())
		body.WriteString(s)
	}

	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := ""
	for i := range pages {
		if i > 0 {
			kids += " "
		}
		kids += fmt.Sprintf("%d 0 R", i+3)
	}
	addObj(fmt.Sprintf(
		"2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 %g %g] >>\nendobj\n",
		kids, len(pages), DefaultWidth, DefaultHeight))

	for i, p := range pages {
		dict := "<< /Type /Page /Parent 2 0 R"
		if p.Width > 0 && p.Height > 0 {
			dict += fmt.Sprintf(" /MediaBox [0 0 %g %g]", p.Width, p.Height)
		}
		if p.Rotate != 0 {
			dict += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		dict += " >>"
		addObj(fmt.Sprintf("%d 0 obj\n%s\nendobj\n", i+3, dict))
	}

	xrefPos := body.Len()
	count := len(offsets) + 1
	body.WriteString(fmt.Sprintf("xref\n0 %d\n", count))
	body.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		body.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	body.WriteString(fmt.Sprintf(
		"trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		count, xrefPos))

	return body.Bytes()
}

// GenerateUniform builds a document of n identical pages.
func GenerateUniform(n int, w, h float64) []byte {
	pages := make([]PageSpec, n)
	for i := range pages {
		pages[i] = PageSpec{Width: w, Height: h}
	}
	return Generate(pages)
}

// WriteTemp writes a generated PDF to a temp file and returns its path.
// The caller owns cleanup; tests usually pass t.TempDir-based paths
// elsewhere, this is for quick local fixtures.
func WriteTemp(dir string, pages []PageSpec) (string, error) {
	f, err := os.CreateTemp(dir, "pdftest-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(Generate(pages)); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
