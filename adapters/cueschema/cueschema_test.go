package cueschema_test

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/artpar/procgate/adapters/cueschema"
)

const planetSchema = `
#Planet: {
	name:         string & !=""
	description?: string
	moons:        *0 | (int & >=0)
	tags?:        [...string]
}
`

func TestCompile(t *testing.T) {
	if _, err := cueschema.Compile(planetSchema, "#Planet"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := cueschema.Compile(planetSchema, "#Moon"); err == nil {
		t.Error("expected error for a missing definition")
	}
	if _, err := cueschema.Compile("#Planet: {", "#Planet"); err == nil {
		t.Error("expected error for invalid CUE")
	}
}

func TestSchema_Validate(t *testing.T) {
	s := cueschema.MustCompile(planetSchema, "#Planet")

	tests := []struct {
		name      string
		input     any
		wantOK    bool
		wantValue any
		wantPath  []any
	}{
		{
			name:      "defaults applied",
			input:     map[string]any{"name": "Mars"},
			wantOK:    true,
			wantValue: map[string]any{"name": "Mars", "moons": int64(0)},
		},
		{
			name:      "json whole numbers unify with int",
			input:     map[string]any{"name": "Jupiter", "moons": float64(95), "tags": []any{"gas"}},
			wantOK:    true,
			wantValue: map[string]any{"name": "Jupiter", "moons": int64(95), "tags": []any{"gas"}},
		},
		{
			name:     "missing required",
			input:    map[string]any{},
			wantPath: []any{"name"},
		},
		{
			name:     "constraint",
			input:    map[string]any{"name": "Venus", "moons": -1},
			wantPath: []any{"moons"},
		},
		{
			name:     "closed definition",
			input:    map[string]any{"name": "Venus", "rings": true},
			wantPath: []any{"rings"},
		},
		{
			name:     "list index",
			input:    map[string]any{"name": "Saturn", "tags": []any{"gas", 7}},
			wantPath: []any{"tags", 1},
		},
		{
			name:  "null",
			input: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Validate(context.Background(), tt.input)
			if res.OK() != tt.wantOK {
				t.Fatalf("OK = %v, issues = %v", res.OK(), res.Issues)
			}
			if tt.wantOK {
				if !reflect.DeepEqual(res.Value, tt.wantValue) {
					t.Errorf("Value = %#v, want %#v", res.Value, tt.wantValue)
				}
				return
			}
			if tt.wantPath == nil {
				return
			}
			found := false
			for _, is := range res.Issues {
				if reflect.DeepEqual(is.Path, tt.wantPath) {
					found = true
				}
			}
			if !found {
				t.Errorf("no issue at %v: %v", tt.wantPath, res.Issues)
			}
		})
	}
}

func TestSchema_ConcurrentValidate(t *testing.T) {
	s := cueschema.MustCompile(planetSchema, "#Planet")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := s.Validate(context.Background(), map[string]any{"name": "Earth", "moons": 1}); !res.OK() {
				t.Errorf("issues = %v", res.Issues)
			}
		}()
	}
	wg.Wait()
}
