package route

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Matcher maps (method, path) to registered entries.
// Entries are kept sorted by specificity: more slashes first, then fewer
// params, then registration order. The first matching entry wins.
// A Matcher is not safe for concurrent use; callers synchronize.
type Matcher struct {
	byMethod map[string][]*compiledPattern
	byKey    map[string]*compiledPattern
	seq      int
}

type compiledPattern struct {
	entry      Entry
	seq        int
	slashes    int
	regex      *regexp.Regexp // nil for literal patterns
	exact      string
	paramNames []string
}

var (
	paramPattern = regexp.MustCompile(`\{(\+?)([^{}]*)\}`)
	paramName    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// NewMatcher creates an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		byMethod: make(map[string][]*compiledPattern),
		byKey:    make(map[string]*compiledPattern),
	}
}

// Register adds an entry. {name} captures one segment and {+name} captures
// the rest of the path. Registering the same method and normalized pattern
// again replaces the earlier entry but keeps its registration order.
func (m *Matcher) Register(method, pattern string, path []string) error {
	method = NormalizeMethod(method)
	pattern = NormalizePath(pattern)

	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	cp.entry = Entry{Method: method, Pattern: pattern, Path: append([]string(nil), path...)}

	key := method + " " + pattern
	if prev, ok := m.byKey[key]; ok {
		cp.seq = prev.seq
		list := m.byMethod[method]
		for i, p := range list {
			if p == prev {
				list[i] = cp
			}
		}
		m.byKey[key] = cp
		return nil
	}

	m.seq++
	cp.seq = m.seq
	m.byKey[key] = cp

	list := append(m.byMethod[method], cp)
	sort.SliceStable(list, func(i, j int) bool {
		return morePrecise(list[i], list[j])
	})
	m.byMethod[method] = list
	return nil
}

func morePrecise(a, b *compiledPattern) bool {
	if a.slashes != b.slashes {
		return a.slashes > b.slashes
	}
	if len(a.paramNames) != len(b.paramNames) {
		return len(a.paramNames) < len(b.paramNames)
	}
	return a.seq < b.seq
}

func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{slashes: strings.Count(pattern, "/")}

	locs := paramPattern.FindAllStringSubmatchIndex(pattern, -1)
	if len(locs) == 0 {
		if strings.ContainsAny(pattern, "{}") {
			return nil, fmt.Errorf("route pattern %q: unbalanced braces", pattern)
		}
		cp.exact = pattern
		return cp, nil
	}

	var b strings.Builder
	b.WriteString("^")
	last := 0
	seen := make(map[string]bool, len(locs))
	for _, loc := range locs {
		literal := pattern[last:loc[0]]
		if strings.ContainsAny(literal, "{}") {
			return nil, fmt.Errorf("route pattern %q: unbalanced braces", pattern)
		}
		b.WriteString(regexp.QuoteMeta(literal))

		greedy := loc[3] > loc[2]
		name := pattern[loc[4]:loc[5]]
		if !paramName.MatchString(name) {
			return nil, fmt.Errorf("route pattern %q: invalid parameter name %q", pattern, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("route pattern %q: duplicate parameter %q", pattern, name)
		}
		seen[name] = true
		cp.paramNames = append(cp.paramNames, name)

		if greedy {
			b.WriteString("(.+)")
		} else {
			b.WriteString("([^/]+)")
		}
		last = loc[1]
	}
	tail := pattern[last:]
	if strings.ContainsAny(tail, "{}") {
		return nil, fmt.Errorf("route pattern %q: unbalanced braces", pattern)
	}
	b.WriteString(regexp.QuoteMeta(tail))
	b.WriteString("$")

	regex, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("route pattern %q: %w", pattern, err)
	}
	cp.regex = regex
	return cp, nil
}

// Match finds the most specific entry for method and path.
// The path is normalized first; captured params are percent-decoded.
func (m *Matcher) Match(method, path string) (Match, bool) {
	path = NormalizePath(path)
	for _, cp := range m.byMethod[NormalizeMethod(method)] {
		params, ok := cp.match(path)
		if !ok {
			continue
		}
		return Match{
			Path:    append([]string(nil), cp.entry.Path...),
			Pattern: cp.entry.Pattern,
			Params:  params,
		}, true
	}
	return Match{}, false
}

func (cp *compiledPattern) match(path string) (map[string]string, bool) {
	params := make(map[string]string, len(cp.paramNames))

	if cp.regex == nil {
		return params, path == cp.exact
	}

	matches := cp.regex.FindStringSubmatch(path)
	if matches == nil {
		return nil, false
	}
	for i, name := range cp.paramNames {
		params[name] = DecodeParam(matches[i+1])
	}
	return params, true
}

// Entries returns every registered entry in registration order.
func (m *Matcher) Entries() []Entry {
	all := make([]*compiledPattern, 0, len(m.byKey))
	for _, cp := range m.byKey {
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	out := make([]Entry, len(all))
	for i, cp := range all {
		out[i] = cp.entry
	}
	return out
}

// Len returns the number of registered entries.
func (m *Matcher) Len() int {
	return len(m.byKey)
}
