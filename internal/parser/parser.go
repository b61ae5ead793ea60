// Package parser extracts wikilinks and hashtags from note content.
package parser

import (
	"regexp"
	"strings"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`#([A-Za-z0-9_-]+)`)
)

// LinkTitles returns the titles referenced by [[...]] markers, trimmed and
// deduplicated in first-seen order. Unclosed markers are not matched.
func LinkTitles(content string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	out := []string{}
	for _, m := range matches {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// Tags returns the bodies of #hashtags in content, deduplicated in
// first-seen order.
func Tags(content string) []string {
	matches := tagRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]struct{}, len(matches))
	out := []string{}
	for _, m := range matches {
		t := m[1]
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// NormalizeTitle returns the key under which a title is addressable by
// link syntax.
func NormalizeTitle(title string) string {
	return strings.ToLower(title)
}

// markerRe matches [[title]] case-insensitively and nothing else.
func markerRe(title string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\[\[` + regexp.QuoteMeta(title) + `\]\]`)
}

// RenameLinks rewrites every [[oldTitle]] marker (case-insensitive) to
// [[newTitle]].
func RenameLinks(content, oldTitle, newTitle string) string {
	if !strings.Contains(content, "[[") {
		return content
	}
	return markerRe(oldTitle).ReplaceAllLiteralString(content, "[["+newTitle+"]]")
}

// Unlink turns every [[title]] marker (case-insensitive) into the plain text
// it wrapped.
func Unlink(content, title string) string {
	if !strings.Contains(content, "[[") {
		return content
	}
	return markerRe(title).ReplaceAllStringFunc(content, func(m string) string {
		return m[2 : len(m)-2]
	})
}
