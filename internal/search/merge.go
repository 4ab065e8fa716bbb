package search

import (
	"sort"
	"strings"
)

// MergeOverlapping coalesces overlapping or touching passages from the
// same document into single spans. Within one document the merge walks
// passages in start-offset order with a cursor: while the next passage
// starts at or before the current span's end, it is absorbed: the span
// keeps the maximum score, appends only the non-duplicated suffix of
// the next passage's content, and extends its end offset. A gap closes
// the span and starts a new one.
//
// The full output across documents is re-sorted by score descending,
// since merging changes which score wins. Offsets are rune offsets and
// the suffix arithmetic slices runes, never bytes.
func MergeOverlapping(results []*FusedResult) []*MergedSpan {
	if len(results) == 0 {
		return []*MergedSpan{}
	}

	// Group by document, keeping deterministic document order.
	byDocument := make(map[string][]*FusedResult)
	var docIDs []string
	for _, r := range results {
		id := r.Passage.DocumentID
		if _, ok := byDocument[id]; !ok {
			docIDs = append(docIDs, id)
		}
		byDocument[id] = append(byDocument[id], r)
	}
	sort.Strings(docIDs)

	var merged []*MergedSpan
	for _, docID := range docIDs {
		merged = append(merged, mergeDocument(docID, byDocument[docID])...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	return merged
}

// mergeDocument merges one document's passages. The returned spans are
// non-overlapping and ordered by start offset.
func mergeDocument(docID string, results []*FusedResult) []*MergedSpan {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Passage.Start < results[j].Passage.Start
	})

	var spans []*MergedSpan
	i := 0
	for i < len(results) {
		cur := results[i]
		var content strings.Builder
		content.WriteString(cur.Passage.Content)
		span := &MergedSpan{
			DocumentID: docID,
			Start:      cur.Passage.Start,
			End:        cur.Passage.End,
			Score:      cur.Score,
		}

		j := i + 1
		for j < len(results) {
			next := results[j]
			if next.Passage.Start > span.End {
				break
			}

			if next.Score > span.Score {
				span.Score = next.Score
			}

			// Append only the part past the current span's end. A fully
			// contained passage contributes an empty suffix.
			overlap := span.End - next.Passage.Start
			if overlap < 0 {
				overlap = 0
			}
			nextRunes := []rune(next.Passage.Content)
			if overlap < len(nextRunes) {
				content.WriteString(string(nextRunes[overlap:]))
			}

			if next.Passage.End > span.End {
				span.End = next.Passage.End
			}
			j++
		}

		span.Content = content.String()
		spans = append(spans, span)
		i = j
	}

	return spans
}
