// Package route compiles procedure routes into a matchable table.
// It is a pure value layer: no I/O, no knowledge of procedures.
package route

import (
	"net/url"
	"strings"
)

// DefaultMethod is used for entries registered without a method.
const DefaultMethod = "POST"

// Entry is one registered route.
type Entry struct {
	Method  string
	Pattern string
	Path    []string
}

// Match is the result of a successful lookup.
type Match struct {
	Path    []string
	Pattern string
	Params  map[string]string
}

// NormalizePath ensures a leading slash, collapses repeated slashes and
// trims a trailing slash. The root path stays "/".
func NormalizePath(p string) string {
	var b strings.Builder
	b.Grow(len(p) + 1)
	b.WriteByte('/')
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		if b.Len() > 1 {
			b.WriteByte('/')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// StandardPath builds the default HTTP path of a logical path:
// each segment percent-encoded, joined by slashes.
func StandardPath(path []string) string {
	segs := make([]string, len(path))
	for i, s := range path {
		segs[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(segs, "/")
}

// DecodeParam percent-decodes a captured value. Invalid escapes are kept
// as-is.
func DecodeParam(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// NormalizeMethod upper-cases method, defaulting to DefaultMethod.
func NormalizeMethod(method string) string {
	if method == "" {
		return DefaultMethod
	}
	return strings.ToUpper(method)
}
