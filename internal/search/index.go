// Package search builds and queries a full-text index over notes off the
// mutation path.
package search

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"

	"github.com/starford/tangle/internal/models"
)

// Mode restricts which fields a query is matched against.
type Mode string

// Query modes.
const (
	ModeAll     Mode = "all"
	ModeTitle   Mode = "title"
	ModeContent Mode = "content"
	ModeTags    Mode = "tags"
)

// ParseMode maps user input to a Mode, defaulting to ModeAll.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(s)) {
	case ModeTitle:
		return ModeTitle
	case ModeContent:
		return ModeContent
	case ModeTags:
		return ModeTags
	default:
		return ModeAll
	}
}

type field uint8

const (
	fieldTitle field = 1 << iota
	fieldContent
	fieldTags
)

func (m Mode) fields() field {
	switch m {
	case ModeTitle:
		return fieldTitle
	case ModeContent:
		return fieldContent
	case ModeTags:
		return fieldTags
	default:
		return fieldTitle | fieldContent | fieldTags
	}
}

// Document is an indexed note with denormalized display fields.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Links     []string  `json:"links"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Index is an in-memory inverted index with prefix and typo-tolerant term
// matching. It is a recall layer; Score decides what is actually returned.
// Index is not safe for concurrent use; the Worker owns it.
type Index struct {
	docs     []Document
	postings map[string]map[int]field
	terms    []string // sorted keys of postings
	titles   []string // docs[i].Title, for fuzzy title recall
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{postings: make(map[string]map[int]field)}
}

// Build replaces the index contents with the live notes of the snapshot.
func (idx *Index) Build(notes []models.Note) {
	idx.docs = idx.docs[:0]
	idx.postings = make(map[string]map[int]field)
	idx.titles = idx.titles[:0]

	for _, n := range notes {
		if n.Deleted {
			continue
		}
		i := len(idx.docs)
		idx.docs = append(idx.docs, Document{
			ID:        n.ID,
			Title:     n.Title,
			Content:   n.Content,
			Tags:      n.Tags,
			Links:     n.Links,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		})
		idx.titles = append(idx.titles, n.Title)
		idx.add(i, fieldTitle, tokenize(n.Title))
		idx.add(i, fieldContent, tokenize(n.Content))
		for _, tag := range n.Tags {
			idx.add(i, fieldTags, tokenize(tag))
			idx.add(i, fieldTags, []string{strings.ToLower(tag)})
		}
	}

	idx.terms = make([]string, 0, len(idx.postings))
	for term := range idx.postings {
		idx.terms = append(idx.terms, term)
	}
	sort.Strings(idx.terms)
}

func (idx *Index) add(doc int, f field, terms []string) {
	for _, term := range terms {
		p, ok := idx.postings[term]
		if !ok {
			p = make(map[int]field)
			idx.postings[term] = p
		}
		p[doc] |= f
	}
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Documents returns every indexed document in snapshot order.
func (idx *Index) Documents() []Document {
	return append([]Document(nil), idx.docs...)
}

// Candidates returns documents plausibly matching text in the given mode,
// best recall first. A blank query yields every document.
func (idx *Index) Candidates(text string, mode Mode) []Document {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return idx.Documents()
	}
	want := mode.fields()
	hits := make(map[int]int)

	for _, tok := range tokens {
		for _, term := range idx.matchingTerms(tok) {
			weight := 1
			if term == tok {
				weight = 2
			}
			for doc, f := range idx.postings[term] {
				if f&want != 0 {
					hits[doc] += weight
				}
			}
		}
	}

	if want&fieldTitle != 0 {
		for _, m := range fuzzy.Find(strings.ToLower(text), lowerAll(idx.titles)) {
			hits[m.Index]++
		}
	}

	docs := make([]int, 0, len(hits))
	for d := range hits {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if hits[docs[i]] != hits[docs[j]] {
			return hits[docs[i]] > hits[docs[j]]
		}
		return docs[i] < docs[j]
	})
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = idx.docs[d]
	}
	return out
}

// matchingTerms returns indexed terms equal to tok, prefixed by tok, or
// within a small edit distance of it.
func (idx *Index) matchingTerms(tok string) []string {
	var out []string
	start := sort.SearchStrings(idx.terms, tok)
	for i := start; i < len(idx.terms) && strings.HasPrefix(idx.terms[i], tok); i++ {
		out = append(out, idx.terms[i])
	}
	maxEdits := editTolerance(tok)
	if maxEdits == 0 {
		return out
	}
	for _, term := range idx.terms {
		if strings.HasPrefix(term, tok) {
			continue
		}
		if abs(len(term)-len(tok)) > maxEdits {
			continue
		}
		if levenshtein.ComputeDistance(tok, term) <= maxEdits {
			out = append(out, term)
		}
	}
	return out
}

func editTolerance(tok string) int {
	switch n := len([]rune(tok)); {
	case n >= 8:
		return 2
	case n >= 4:
		return 1
	default:
		return 0
	}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
