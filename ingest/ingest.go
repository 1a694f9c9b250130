// Package ingest turns uploaded spreadsheets into email rows.
//
// Supported formats are .xlsx (first sheet) and .csv. The first non-blank
// row is the header; columns are located by name, case-insensitively.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"path/filepath"
	"strings"
)

var (
	ErrEmptySheet        = errors.New("ingest: empty sheet")
	ErrUnsupportedFormat = errors.New("ingest: unsupported file format")
	ErrReadFailed        = errors.New("ingest: failed to read file")
)

// MissingColumnsError lists required columns absent from the header row.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("ingest: missing columns: %s", strings.Join(e.Columns, ", "))
}

// ColumnMapping names the header cells holding each field. Name is optional.
type ColumnMapping struct {
	Email   string `json:"email_column"`
	Subject string `json:"subject_column"`
	Body    string `json:"body_column"`
	Name    string `json:"name_column,omitempty"`
}

// DefaultMapping returns the mapping used when the caller gives none.
func DefaultMapping() ColumnMapping {
	return ColumnMapping{Email: "email", Subject: "subject", Body: "body", Name: "name"}
}

// WithDefaults fills empty required fields from DefaultMapping. An empty Name
// stays empty only when the caller set the other fields explicitly.
func (m ColumnMapping) WithDefaults() ColumnMapping {
	d := DefaultMapping()
	if m == (ColumnMapping{}) {
		return d
	}
	if m.Email == "" {
		m.Email = d.Email
	}
	if m.Subject == "" {
		m.Subject = d.Subject
	}
	if m.Body == "" {
		m.Body = d.Body
	}
	return m
}

// Row is one message read from a sheet. Line is the 1-based sheet row.
type Row struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Name    string `json:"name,omitempty"`
	Line    int    `json:"line"`
}

// Skipped reports a row that had an address but could not be used.
type Skipped struct {
	Reason string `json:"reason"`
	Line   int    `json:"line"`
}

// Result is the outcome of Parse.
type Result struct {
	Rows    []Row     `json:"rows"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

// Parse reads the file and maps its rows. The format is chosen by the
// filename extension.
//
// Rows whose email cell has no "@" are dropped silently. Rows with an
// unparsable address or a missing subject or body are listed in
// Result.Skipped. Blank rows are ignored.
func Parse(r io.Reader, filename string, m ColumnMapping) (*Result, error) {
	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(r)
	case ".csv":
		records, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, errors.Join(ErrReadFailed, err)
	}
	return mapRecords(records, m.WithDefaults())
}

func mapRecords(records [][]string, m ColumnMapping) (*Result, error) {
	start := -1
	for i, rec := range records {
		if !blank(rec) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrEmptySheet
	}

	header := make(map[string]int, len(records[start]))
	for i, cell := range records[start] {
		key := normalize(cell)
		if _, dup := header[key]; !dup && key != "" {
			header[key] = i
		}
	}

	var missing []string
	col := func(name string, required bool) int {
		if name == "" {
			return -1
		}
		i, ok := header[normalize(name)]
		if !ok {
			if required {
				missing = append(missing, name)
			}
			return -1
		}
		return i
	}
	emailCol, subjectCol, bodyCol := col(m.Email, true), col(m.Subject, true), col(m.Body, true)
	nameCol := col(m.Name, false)
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	res := &Result{Rows: make([]Row, 0, len(records)-start-1)}
	for i := start + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		line := i + 1
		row := Row{
			Email:   cell(rec, emailCol),
			Subject: cell(rec, subjectCol),
			Body:    cell(rec, bodyCol),
			Name:    cell(rec, nameCol),
			Line:    line,
		}
		switch {
		case !strings.Contains(row.Email, "@"):
			continue
		case !validAddress(row.Email):
			res.Skipped = append(res.Skipped, Skipped{Line: line, Reason: "invalid email address"})
		case row.Subject == "":
			res.Skipped = append(res.Skipped, Skipped{Line: line, Reason: "missing subject"})
		case row.Body == "":
			res.Skipped = append(res.Skipped, Skipped{Line: line, Reason: "missing body"})
		default:
			res.Rows = append(res.Rows, row)
		}
	}

	if len(res.Rows) == 0 && len(res.Skipped) == 0 {
		return nil, ErrEmptySheet
	}
	return res, nil
}

func validAddress(s string) bool {
	_, err := mail.ParseAddress(s)
	return err == nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}
