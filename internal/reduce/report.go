package reduce

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// WriteCSV renders the advice rows as semicolon-delimited UTF-8 CSV, matching
// the delimiter convention of the ingestion side so downstream spreadsheet
// tooling round-trips cleanly.
func WriteCSV(w io.Writer, rows []AdviceRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"Frequency", "Text", "Reason", "Confidence"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(r.Frequency),
			r.Text,
			r.Reason,
			string(r.Confidence),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildMarkdown renders a human-readable report for the PDF renderer and the
// operator view.
func BuildMarkdown(res PipelineResult) string {
	var b strings.Builder
	b.WriteString("# Clause Redundancy Report\n\n")
	fmt.Fprintf(&b, "_Generated %s_\n\n", res.Finished.Format(time.RFC3339))
	fmt.Fprintf(&b, "> %s\n\n", Disclaimer)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Rows processed: %d (skipped as noise: %d)\n", res.Stats.RowsProcessed, res.Stats.RowsSkipped)
	fmt.Fprintf(&b, "- Unique texts: %d, clusters: %d\n", res.Stats.UniqueKeys, res.Stats.Clusters)
	fmt.Fprintf(&b, "- Lexical verdicts: %d\n", res.Stats.VerdictsEmitted)
	fmt.Fprintf(&b, "- Semantic verification: %s\n", res.Stats.SemanticStatus)
	fmt.Fprintf(&b, "- Redundant clauses flagged: %d\n\n", len(res.Advice))

	if len(res.Advice) == 0 {
		b.WriteString("No redundant clauses were found.\n")
		return b.String()
	}

	b.WriteString("## Flagged Clauses\n\n")
	b.WriteString("| Frequency | Text | Reason | Confidence |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range res.Advice {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n",
			r.Frequency, escapeCell(r.Text), escapeCell(r.Reason), r.Confidence)
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.Join(strings.Fields(s), " ")
}
