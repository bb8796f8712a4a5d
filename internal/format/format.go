// Package format turns the lightweight markup returned by the generation
// providers into HTML fragments.
package format

import (
	"html"
	"html/template"
	"regexp"
	"strings"
)

// lineMark records where a newline used to be so the list rules can still
// anchor on line starts after the break rules have run.
const lineMark = "\x00"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules run in order; each one sees the output of the previous.
var rules = []rule{
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "<strong>$1</strong>"},
	{regexp.MustCompile(`\n\n`), "</p><p>" + lineMark},
	{regexp.MustCompile(`\n`), "<br>" + lineMark},
	{regexp.MustCompile(`(^|\x00)\s*[-*]\s([^\x00]*)`), "${1}<ul><li>${2}</li></ul>"},
	{regexp.MustCompile(`(^|\x00)\s*\d+\.\s([^\x00]*)`), "${1}<ol><li>${2}</li></ol>"},
	{regexp.MustCompile(`\x00`), ""},
}

// Text applies the markup rules to s. It does not escape its input.
func Text(s string) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return strings.TrimSpace(s)
}

// HTML escapes s and then applies the markup rules, producing a fragment that
// is safe to embed in a page.
func HTML(s string) template.HTML {
	return template.HTML(Text(html.EscapeString(s)))
}
