package route_test

import (
	"reflect"
	"testing"

	"github.com/artpar/procgate/domain/route"
)

func mustRegister(t *testing.T, m *route.Matcher, method, pattern string, path ...string) {
	t.Helper()
	if err := m.Register(method, pattern, path); err != nil {
		t.Fatalf("Register(%s %s) failed: %v", method, pattern, err)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"ping", "/ping"},
		{"/ping/", "/ping"},
		{"//a///b//", "/a/b"},
		{"/a/b", "/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := route.NormalizePath(tt.in)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := route.NormalizePath(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestStandardPath(t *testing.T) {
	got := route.StandardPath([]string{"planet", "find by/id"})
	if got != "/planet/find%20by%2Fid" {
		t.Errorf("StandardPath = %q", got)
	}
}

func TestMatcher_LiteralBeatsParam(t *testing.T) {
	orders := [][2]string{
		{"/a/b", "/a/{x}"},
		{"/a/{x}", "/a/b"},
	}

	for _, order := range orders {
		m := route.NewMatcher()
		for _, p := range order {
			mustRegister(t, m, "GET", p, p)
		}

		got, ok := m.Match("GET", "/a/b")
		if !ok {
			t.Fatalf("order %v: no match", order)
		}
		if got.Pattern != "/a/b" {
			t.Errorf("order %v: matched %s, want /a/b", order, got.Pattern)
		}

		got, ok = m.Match("GET", "/a/c")
		if !ok || got.Pattern != "/a/{x}" || got.Params["x"] != "c" {
			t.Errorf("order %v: /a/c matched %+v", order, got)
		}
	}
}

func TestMatcher_TieBreaks(t *testing.T) {
	m := route.NewMatcher()
	mustRegister(t, m, "GET", "/files/{+rest}", "greedy")
	mustRegister(t, m, "GET", "/files/{dir}/{name}", "two")
	mustRegister(t, m, "GET", "/files/{dir}/readme", "one")
	mustRegister(t, m, "GET", "/{a}/{b}", "first")
	mustRegister(t, m, "GET", "/{c}/{d}", "second")

	tests := []struct {
		path     string
		wantPath string
	}{
		{"/files/docs/readme", "one"},
		{"/files/docs/intro", "two"},
		{"/files/docs/a/b", "greedy"},
		{"/files/docs", "greedy"},
		{"/x/y", "first"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := m.Match("GET", tt.path)
			if !ok {
				t.Fatal("no match")
			}
			if got.Path[0] != tt.wantPath {
				t.Errorf("matched %v (%s), want %s", got.Path, got.Pattern, tt.wantPath)
			}
		})
	}
}

func TestMatcher_GreedyDecode(t *testing.T) {
	m := route.NewMatcher()
	mustRegister(t, m, "GET", "/files/{+path}", "files")
	mustRegister(t, m, "GET", "/users/{id}", "users")

	got, ok := m.Match("GET", "/files/a%2Fb/c")
	if !ok {
		t.Fatal("no match")
	}
	if got.Params["path"] != "a/b/c" {
		t.Errorf("path = %q, want a/b/c", got.Params["path"])
	}

	got, ok = m.Match("GET", "/users/john%20doe")
	if !ok || got.Params["id"] != "john doe" {
		t.Errorf("id = %q", got.Params["id"])
	}

	got, ok = m.Match("GET", "/users/100%")
	if !ok || got.Params["id"] != "100%" {
		t.Errorf("invalid escape should be kept, got %q", got.Params["id"])
	}
}

func TestMatcher_MethodAndNormalization(t *testing.T) {
	m := route.NewMatcher()
	mustRegister(t, m, "get", "/ping/", "ping")
	mustRegister(t, m, "", "/planet/create", "planet", "create")

	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{"GET", "/ping", true},
		{"get", "//ping//", true},
		{"POST", "/ping", false},
		{"POST", "/planet/create", true},
		{"GET", "/planet/create", false},
		{"GET", "/nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			_, ok := m.Match(tt.method, tt.path)
			if ok != tt.want {
				t.Errorf("matched = %v, want %v", ok, tt.want)
			}
			a, okA := m.Match(tt.method, route.NormalizePath(tt.path))
			b, okB := m.Match(tt.method, route.NormalizePath(route.NormalizePath(tt.path)))
			if okA != okB || !reflect.DeepEqual(a, b) {
				t.Error("normalization not idempotent for matching")
			}
		})
	}
}

func TestMatcher_ReRegisterLastWriteWins(t *testing.T) {
	m := route.NewMatcher()
	mustRegister(t, m, "GET", "/{a}", "first")
	mustRegister(t, m, "GET", "/{b}", "second")
	mustRegister(t, m, "GET", "/{a}/", "replaced")

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	got, _ := m.Match("GET", "/x")
	if got.Path[0] != "replaced" {
		t.Errorf("matched %v, want replaced entry keeping its rank", got.Path)
	}

	entries := m.Entries()
	if entries[0].Path[0] != "replaced" || entries[1].Path[0] != "second" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestMatcher_InvalidPatterns(t *testing.T) {
	for _, p := range []string{"/a/{}", "/a/{b", "/a/{1x}", "/a/{x}/{x}", "/a/b}"} {
		m := route.NewMatcher()
		if err := m.Register("GET", p, nil); err == nil {
			t.Errorf("Register(%q) should fail", p)
		}
	}
}

func TestMatcher_MixedSegment(t *testing.T) {
	m := route.NewMatcher()
	mustRegister(t, m, "GET", "/assets/{name}.json", "asset")

	got, ok := m.Match("GET", "/assets/earth.json")
	if !ok || got.Params["name"] != "earth" {
		t.Errorf("match = %+v, %v", got, ok)
	}
	if _, ok := m.Match("GET", "/assets/earth.xml"); ok {
		t.Error("unexpected match for .xml")
	}
}
