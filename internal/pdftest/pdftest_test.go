package pdftest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"testing"
)

func TestGenerateStructure(t *testing.T) {
	data := Generate([]PageSpec{
		{Width: 612, Height: 792},
		{Rotate: 90},
	})

	if !bytes.HasPrefix(data, []byte("%PDF-1.4\n")) {
		t.Error("missing PDF header")
	}
	if !bytes.HasSuffix(data, []byte("%%EOF\n")) {
		t.Error("missing EOF marker")
	}
	if got := bytes.Count(data, []byte(" obj\n")); got != 4 {
		t.Errorf("object count = %d, want 4", got)
	}
}

func TestGenerateXrefOffsets(t *testing.T) {
	data := Generate([]PageSpec{{Width: 100, Height: 200}})
	s := string(data)

	xref := strings.Index(s, "xref\n")
	if xref < 0 {
		t.Fatal("no xref table")
	}

	// startxref must point at the xref keyword.
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var startxref int
	for i, ln := range lines {
		if ln == "startxref" {
			startxref, _ = strconv.Atoi(lines[i+1])
		}
	}
	if startxref != xref {
		t.Errorf("startxref = %d, want %d", startxref, xref)
	}

	// Each in-use entry offset must land on "<num> 0 obj".
	entryBlock := s[xref:]
	entryLines := strings.Split(entryBlock, "\n")
	obj := 0
	for _, ln := range entryLines[2:] { // skip "xref" and "0 N"
		if !strings.HasSuffix(ln, " n ") {
			break
		}
		obj++
		off, err := strconv.Atoi(strings.Fields(ln)[0])
		if err != nil {
			t.Fatalf("bad offset in entry %q", ln)
		}
		want := fmt.Sprintf("%d 0 obj\n", obj)
		if !strings.HasPrefix(s[off:], want) {
			t.Errorf("entry %d offset %d points at %q, want %q", obj, off, s[off:off+12], want)
		}
	}
	if obj != 2 {
		t.Errorf("in-use entries = %d, want 2", obj)
	}
}

func TestXrefEntriesAreTwentyBytes(t *testing.T) {
	data := Generate([]PageSpec{{}})
	s := string(data)
	i := strings.Index(s, "xref\n")
	rest := s[i:]
	// skip "xref\n" and the subsection header line
	nl := strings.IndexByte(rest, '\n')
	rest = rest[nl+1:]
	nl = strings.IndexByte(rest, '\n')
	rest = rest[nl+1:]
	for !strings.HasPrefix(rest, "trailer") {
		if len(rest) < 20 {
			t.Fatal("ran out of data before trailer")
		}
		entry := rest[:20]
		// entry layout: 10-digit offset, space, 5-digit gen, space, type, space, \n
		if entry[17] != 'n' && entry[17] != 'f' {
			t.Fatalf("malformed xref entry %q", entry)
		}
		if entry[19] != '\n' {
			t.Fatalf("xref entry not 20 bytes: %q", entry)
		}
		rest = rest[20:]
	}
}
