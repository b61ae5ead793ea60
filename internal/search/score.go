package search

import (
	"sort"
	"strings"
)

// Field weights applied by Score.
const (
	weightTitle   = 3
	weightTags    = 2
	weightContent = 1
)

// Result is a scored search hit.
type Result struct {
	Document
	Score int `json:"score"`
}

// Score rates doc against the whitespace-delimited tokens of text. Every
// token must occur as a case-insensitive substring of at least one field
// enabled by mode; otherwise ok is false. Each token adds the weight of
// every field it occurs in.
func Score(doc Document, text string, mode Mode) (score int, ok bool) {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return 0, true
	}
	want := mode.fields()
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)

	for _, tok := range tokens {
		matched := false
		if want&fieldTitle != 0 && strings.Contains(title, tok) {
			score += weightTitle
			matched = true
		}
		if want&fieldTags != 0 && tagsContain(doc.Tags, tok) {
			score += weightTags
			matched = true
		}
		if want&fieldContent != 0 && strings.Contains(content, tok) {
			score += weightContent
			matched = true
		}
		if !matched {
			return 0, false
		}
	}
	return score, true
}

func tagsContain(tags []string, tok string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), tok) {
			return true
		}
	}
	return false
}

// hasAllTags reports whether doc carries every required tag (exact match).
func hasAllTags(doc Document, required []string) bool {
	for _, r := range required {
		found := false
		for _, t := range doc.Tags {
			if t == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Rank filters candidates by required tags, scores the rest and returns
// them best first. Ties go to the most recently updated note.
func Rank(candidates []Document, q Query) []Result {
	out := make([]Result, 0, len(candidates))
	for _, doc := range candidates {
		if !hasAllTags(doc, q.Tags) {
			continue
		}
		score, ok := Score(doc, q.Text, q.Mode)
		if !ok {
			continue
		}
		out = append(out, Result{Document: doc, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
