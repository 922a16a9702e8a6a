package reduce

import "sort"

// ClusterOutcome collects everything the pipeline learned about one cluster:
// the lexical verdict (nil when the matcher declined) and the semantic
// judgment (nil when the cluster never reached the judge).
type ClusterOutcome struct {
	Cluster  *Cluster
	Verdict  *MatchVerdict
	Judgment *SemanticJudgment
}

// BuildAdvice folds lexical and semantic evidence into the final ranked rows.
//
// A semantic same-meaning judgment at or above the confidence floor
// guarantees at least a Medium tier, but never lowers a lexical High. Rows
// are ordered by tier, then frequency, both descending; the sort is stable so
// equal (tier, frequency) pairs keep their upstream cluster order.
func BuildAdvice(outcomes []ClusterOutcome, cfg Config) []AdviceRow {
	rows := make([]AdviceRow, 0, len(outcomes))
	for _, o := range outcomes {
		tier := TierNone
		reason := ""
		if o.Verdict != nil {
			tier = o.Verdict.Tier
			reason = o.Verdict.Reason
		}
		if j := o.Judgment; j != nil && j.IsSameMeaning && j.Confidence >= SemanticConfidenceFloor {
			if tierRank(tier) > tierRank(TierMedium) {
				tier = TierMedium
			}
			reason = semanticReason(j, reason)
		}
		if tier == TierNone {
			continue
		}
		rows = append(rows, AdviceRow{
			Frequency:  o.Cluster.TotalCount,
			Text:       o.Cluster.RepresentativeText,
			Reason:     reason,
			Confidence: tier,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := tierRank(rows[i].Confidence), tierRank(rows[j].Confidence)
		if ri != rj {
			return ri < rj
		}
		return rows[i].Frequency > rows[j].Frequency
	})
	return rows
}

func semanticReason(j *SemanticJudgment, lexical string) string {
	reason := "Semantic match"
	if j.MatchingArticle != "" {
		reason += " (" + j.MatchingArticle + ")"
	}
	if j.Explanation != "" && j.Explanation != "no explanation available" {
		reason += ": " + j.Explanation
	}
	if lexical != "" {
		reason = lexical + "; " + reason
	}
	return reason
}
