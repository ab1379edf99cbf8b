// Package match decides which remote file names are synchronized.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is one configured name-matching rule. Exactly one field must be set.
type Rule struct {
	// Exact matches a single file name.
	Exact string `yaml:"exact,omitempty"`
	// Template matches names with numeric placeholders, e.g. "us-counties-{year}.csv".
	Template string `yaml:"template,omitempty"`
	// Glob matches names with a doublestar pattern, e.g. "*.csv".
	Glob string `yaml:"glob,omitempty"`
}

// Placeholders supported in Template rules and the digit runs they accept
var placeholders = map[string]string{
	"{year}":  `\d{4}`,
	"{month}": `\d{2}`,
	"{day}":   `\d{2}`,
	"{n}":     `\d+`,
}

var placeholderRe = regexp.MustCompile(`\{[a-z]+\}`)

// DefaultRules returns the rules of the reference deployment
func DefaultRules() []Rule {
	return []Rule{
		{Exact: "us-states.csv"},
		{Template: "us-counties-{year}.csv"},
	}
}

// String returns a human readable form of the rule
func (r Rule) String() string {
	switch {
	case r.Exact != "":
		return "exact:" + r.Exact
	case r.Template != "":
		return "template:" + r.Template
	case r.Glob != "":
		return "glob:" + r.Glob
	default:
		return "empty"
	}
}

// Matcher reports whether a file name is selected
type Matcher interface {
	Match(name string) bool
}

type exactMatcher string

func (m exactMatcher) Match(name string) bool { return name == string(m) }

type templateMatcher struct{ re *regexp.Regexp }

func (m templateMatcher) Match(name string) bool { return m.re.MatchString(name) }

type globMatcher string

func (m globMatcher) Match(name string) bool {
	// The pattern was validated at compile time
	ok, _ := doublestar.Match(string(m), name)
	return ok
}

// Set is an ordered list of compiled rules
type Set struct {
	rules    []Rule
	matchers []Matcher
}

// Compile validates rules and compiles them in order
func Compile(rules []Rule) (*Set, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("at least one file rule is required")
	}

	s := &Set{
		rules:    rules,
		matchers: make([]Matcher, 0, len(rules)),
	}
	for i, r := range rules {
		m, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r, err)
		}
		s.matchers = append(s.matchers, m)
	}

	return s, nil
}

func compileRule(r Rule) (Matcher, error) {
	set := 0
	for _, v := range []string{r.Exact, r.Template, r.Glob} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of exact, template or glob must be set")
	}

	switch {
	case r.Exact != "":
		return exactMatcher(r.Exact), nil
	case r.Template != "":
		re, err := compileTemplate(r.Template)
		if err != nil {
			return nil, err
		}
		return templateMatcher{re: re}, nil
	default:
		if !doublestar.ValidatePattern(r.Glob) {
			return nil, fmt.Errorf("invalid glob pattern %q", r.Glob)
		}
		return globMatcher(r.Glob), nil
	}
}

// compileTemplate turns a template into an anchored regexp. Text outside
// placeholders is matched literally.
func compileTemplate(tmpl string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	last := 0
	for _, loc := range placeholderRe.FindAllStringIndex(tmpl, -1) {
		token := tmpl[loc[0]:loc[1]]
		expr, ok := placeholders[token]
		if !ok {
			return nil, fmt.Errorf("unknown placeholder %s", token)
		}
		b.WriteString(regexp.QuoteMeta(tmpl[last:loc[0]]))
		b.WriteString(expr)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(tmpl[last:]))
	b.WriteString("$")

	return regexp.Compile(b.String())
}

// Match reports whether any rule selects name. Rules are evaluated in order.
func (s *Set) Match(name string) bool {
	for _, m := range s.matchers {
		if m.Match(name) {
			return true
		}
	}
	return false
}

// Rules returns the source rules of the set
func (s *Set) Rules() []Rule {
	return s.rules
}
