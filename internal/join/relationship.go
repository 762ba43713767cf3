package join

import "importkit/pkg/records"

// maxExamples caps the illustrative matched/unmatched rows returned by
// MatchRelationship. The full match rate is still computed over the whole
// sample; only the example lists are truncated.
const maxExamples = 5

// MatchExample pairs one row from each stage's sample that matched on the
// relationship fields.
type MatchExample struct {
	From records.Record `json:"from"`
	To   records.Record `json:"to"`
}

// MatchResult is the outcome of a relationship preview between two stages.
type MatchResult struct {
	// Matched holds up to maxExamples illustrative matched pairs.
	Matched []MatchExample `json:"matched"`
	// Unmatched holds up to maxExamples rows from the "from" sample that
	// found no counterpart.
	Unmatched []records.Record `json:"unmatched"`
	// MatchRate is the fraction of "from" sample rows that found at least
	// one match, in [0, 1]. Zero when the sample is empty.
	MatchRate float64 `json:"match_rate"`
}

// MatchRelationship previews how two already-defined stages' output rows
// relate: it finds equality matches between sourceField on rowsA and
// targetField on rowsB using the same string-normalized comparison as the
// join engine, and reports illustrative examples plus the match rate.
func MatchRelationship(rowsA, rowsB []records.Record, sourceField, targetField string) *MatchResult {
	res := &MatchResult{}
	if len(rowsA) == 0 {
		return res
	}

	// Index B by normalized key. First occurrence wins for the example pair;
	// the rate only cares about existence.
	byKey := make(map[string]records.Record, len(rowsB))
	for _, b := range rowsB {
		k := normString(b[targetField])
		if k == "" {
			continue
		}
		if _, ok := byKey[k]; !ok {
			byKey[k] = b
		}
	}

	matched := 0
	for _, a := range rowsA {
		k := normString(a[sourceField])
		if b, ok := byKey[k]; ok && k != "" {
			matched++
			if len(res.Matched) < maxExamples {
				res.Matched = append(res.Matched, MatchExample{From: a, To: b})
			}
			continue
		}
		if len(res.Unmatched) < maxExamples {
			res.Unmatched = append(res.Unmatched, a)
		}
	}

	res.MatchRate = float64(matched) / float64(len(rowsA))
	return res
}
