package ingest

import (
	"log"
	"os"
	"strings"
	"unicode/utf8"
)

// Extractor pulls plain text out of a reference conditions document. It is
// best-effort: a failed extraction returns the empty string and the caller
// decides whether an empty reference is acceptable.
type Extractor interface {
	Extract(path string) string
}

// PlainTextExtractor reads the file as UTF-8 text. Files that do not decode
// as UTF-8 are rejected rather than fed to the pipeline as mojibake.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("clause-reduce ingest: extract %s: %v", path, err)
		return ""
	}
	text := strings.TrimSpace(string(data))
	if !utf8.ValidString(text) {
		log.Printf("clause-reduce ingest: extract %s: not valid UTF-8", path)
		return ""
	}
	return text
}
