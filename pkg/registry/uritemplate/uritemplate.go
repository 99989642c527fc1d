// Package uritemplate implements the narrow slice of RFC 6570 Level 1 URI
// templates the resource registry needs: "{name}" variable segments matched
// one path segment at a time, with a specificity ordering so the most
// specific registered template wins when more than one matches a URI.
package uritemplate

import "strings"

// Template is a parsed, matchable URI template.
type Template struct {
	raw      string
	segments []segment
}

type segment struct {
	literal  string // empty when variable
	variable string // empty when literal
}

// Parse splits a template string into '/'-delimited segments, recognizing
// "{var}" as a single-segment variable capture.
func Parse(raw string) *Template {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	segments := make([]segment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") && len(p) > 2 {
			segments = append(segments, segment{variable: p[1 : len(p)-1]})
		} else {
			segments = append(segments, segment{literal: p})
		}
	}
	return &Template{raw: raw, segments: segments}
}

// String returns the original template text.
func (t *Template) String() string { return t.raw }

// IsLiteral reports whether the template contains no variable segments —
// i.e. it matches exactly one URI.
func (t *Template) IsLiteral() bool {
	for _, s := range t.segments {
		if s.variable != "" {
			return false
		}
	}
	return true
}

// literalPrefixLen counts the number of leading literal segments, used to
// break specificity ties between two variable templates.
func (t *Template) literalPrefixLen() int {
	n := 0
	for _, s := range t.segments {
		if s.variable != "" {
			break
		}
		n++
	}
	return n
}

// Match attempts to match uri against the template, returning the captured
// variables on success.
func (t *Template) Match(uri string) (map[string]string, bool) {
	parts := strings.Split(strings.Trim(uri, "/"), "/")
	if len(parts) != len(t.segments) {
		return nil, false
	}

	vars := map[string]string{}
	for i, seg := range t.segments {
		if seg.variable != "" {
			vars[seg.variable] = parts[i]
			continue
		}
		if seg.literal != parts[i] {
			return nil, false
		}
	}
	return vars, true
}

// Best selects the most specific template among those that match uri.
// Specificity order: an exact literal match always wins; among variable
// matches, the template with the longer literal prefix wins; ties break by
// earliest position in candidates (stable, first-registered-wins).
func Best(candidates []*Template, uri string) (*Template, map[string]string, bool) {
	var bestTpl *Template
	var bestVars map[string]string
	bestScore := -1

	for _, tpl := range candidates {
		vars, ok := tpl.Match(uri)
		if !ok {
			continue
		}
		score := tpl.literalPrefixLen() * 1000
		if tpl.IsLiteral() {
			score += 1_000_000
		}
		if score > bestScore {
			bestScore = score
			bestTpl = tpl
			bestVars = vars
		}
	}

	return bestTpl, bestVars, bestTpl != nil
}
