package reduce

import (
	"log"
	"strings"

	"github.com/mheijden/clause-reduce/internal/textnorm"
)

// GroupEntries collapses raw entries into one ExactGroup per normalized key.
// Entries whose trimmed text is shorter than minChars are discarded as noise
// and counted in skipped. The first-seen original text becomes canonical for
// its key; source references accumulate up to MaxSampleRefs.
func GroupEntries(entries []RawEntry, minChars int) (groups map[string]*ExactGroup, processed, skipped int) {
	groups = map[string]*ExactGroup{}
	for _, e := range entries {
		trimmed := strings.TrimSpace(e.Text)
		if len([]rune(trimmed)) < minChars {
			skipped++
			continue
		}
		key := textnorm.Normalize(trimmed)
		if key == "" {
			skipped++
			continue
		}
		processed++
		g, ok := groups[key]
		if !ok {
			g = &ExactGroup{Key: key, OriginalText: trimmed}
			groups[key] = g
		}
		g.Count++
		if ref := strings.TrimSpace(e.SourceRef); ref != "" && len(g.SampleRefs) < MaxSampleRefs {
			g.SampleRefs = append(g.SampleRefs, ref)
		}
	}
	log.Printf("clause-reduce grouper: %d rows processed, %d skipped as noise, %d unique keys",
		processed, skipped, len(groups))
	return groups, processed, skipped
}
