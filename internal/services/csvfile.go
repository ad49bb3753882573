package services

import (
	"bytes"
	"encoding/csv"
	"io"
	"unicode/utf8"

	"tabula/internal/errs"
)

const (
	defaultDelimiter = ','
	exportDelimiter  = ';'
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(content []byte) []byte {
	return bytes.TrimPrefix(content, utf8BOM)
}

// parseDelimiter accepts a single character; empty means a comma.
func parseDelimiter(raw string) (rune, error) {
	if raw == "" {
		return defaultDelimiter, nil
	}
	if raw == `\t` || raw == "tab" {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(raw)
	if size != len(raw) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, errs.Validation("delimiter", "must be a single character")
	}
	return r, nil
}

func newCSVReader(content []byte, delimiter rune) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(stripBOM(content)))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r
}

// newCSVWriter writes the BOM and returns a writer for the export dialect.
func newCSVWriter(w io.Writer) (*csv.Writer, error) {
	if _, err := w.Write(utf8BOM); err != nil {
		return nil, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = exportDelimiter
	return cw, nil
}
