// Package ingest reads the semicolon-delimited clause exports produced by
// the policy administration system and extracts reference conditions text.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mheijden/clause-reduce/internal/reduce"
)

// textColumnNames are the header names recognized as the clause text column,
// lower-cased. The Dutch exports use "clausule" or "tekst".
var textColumnNames = []string{"text", "tekst", "clausule", "clausuletekst", "clause"}

// refColumnNames are recognized source-reference columns.
var refColumnNames = []string{"source_ref", "ref", "referentie", "polisnummer", "polis", "id"}

// ReadResult reports what the reader accepted and what it dropped.
type ReadResult struct {
	Entries   []reduce.RawEntry
	Malformed int
}

// ReadEntries parses a semicolon-delimited export. The first row is the
// header; the text column is located by name, falling back to the first
// column. Rows with the wrong field count or an empty text cell are skipped
// and counted, never fatal. Only an unreadable header fails the read.
func ReadEntries(r io.Reader) (ReadResult, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ReadResult{}, errors.New("input is empty")
		}
		return ReadResult{}, fmt.Errorf("read header: %w", err)
	}
	textCol := findColumn(header, textColumnNames, 0)
	refCol := findColumn(header, refColumnNames, -1)

	var res ReadResult
	line := 1
	for {
		line++
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("clause-reduce ingest: skipping malformed row %d: %v", line, err)
			res.Malformed++
			continue
		}
		if textCol >= len(record) || strings.TrimSpace(record[textCol]) == "" {
			log.Printf("clause-reduce ingest: skipping row %d: no clause text", line)
			res.Malformed++
			continue
		}
		entry := reduce.RawEntry{Text: strings.TrimSpace(record[textCol])}
		if refCol >= 0 && refCol < len(record) {
			entry.SourceRef = strings.TrimSpace(record[refCol])
		}
		if entry.SourceRef == "" {
			entry.SourceRef = fmt.Sprintf("row-%d", line)
		}
		res.Entries = append(res.Entries, entry)
	}
	log.Printf("clause-reduce ingest: %d entries read, %d malformed rows skipped",
		len(res.Entries), res.Malformed)
	return res, nil
}

func findColumn(header []string, names []string, fallback int) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return fallback
}
