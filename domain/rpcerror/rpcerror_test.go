package rpcerror_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/domain/schema"
)

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		code        rpcerror.Code
		opts        rpcerror.Options
		wantStatus  int
		wantMessage string
	}{
		{rpcerror.CodeNotFound, rpcerror.Options{}, 404, "Not Found"},
		{rpcerror.CodeTooManyRequests, rpcerror.Options{}, 429, "Too Many Requests"},
		{"PLANET_GONE", rpcerror.Options{}, 500, "PLANET_GONE"},
		{"PLANET_GONE", rpcerror.Options{Status: 410, Message: "gone"}, 410, "gone"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			e, err := rpcerror.New(tt.code, tt.opts)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if e.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", e.Status, tt.wantStatus)
			}
			if e.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", e.Message, tt.wantMessage)
			}
		})
	}
}

func TestNew_InvalidStatus(t *testing.T) {
	for _, status := range []int{200, 399, 600} {
		_, err := rpcerror.New("X", rpcerror.Options{Status: status})
		if !errors.Is(err, rpcerror.ErrInvalidStatus) {
			t.Errorf("status %d: err = %v, want ErrInvalidStatus", status, err)
		}
	}
}

func TestMergeErrorMap_RightBiased(t *testing.T) {
	base := rpcerror.ErrorMap{
		"X": {Status: 500},
		"Y": {Status: 409},
	}
	ext := rpcerror.ErrorMap{
		"X": {Status: 400},
	}

	merged := rpcerror.MergeErrorMap(base, ext)
	if merged["X"].Status != 400 {
		t.Errorf("X.Status = %d, want 400", merged["X"].Status)
	}
	if merged["Y"].Status != 409 {
		t.Errorf("Y.Status = %d, want 409", merged["Y"].Status)
	}
	if base["X"].Status != 500 {
		t.Error("base map was mutated")
	}
}

func TestValidateAgainstMap(t *testing.T) {
	nameData := schema.Object{Fields: []schema.Field{
		{Name: "name", Type: schema.TypeString, Required: true},
	}}
	m := rpcerror.ErrorMap{
		"X":                    {Status: 400},
		rpcerror.CodeNotFound:  {},
		rpcerror.CodeConflict:  {Data: nameData},
		rpcerror.CodeForbidden: {Status: 401},
	}

	tests := []struct {
		name        string
		err         *rpcerror.Error
		wantDefined bool
	}{
		{"status mismatch demotes", &rpcerror.Error{Code: "X", Status: 500, Defined: true}, false},
		{"matching status promotes", &rpcerror.Error{Code: "X", Status: 400}, true},
		{"missing code", &rpcerror.Error{Code: "Y", Status: 400, Defined: true}, false},
		{"fallback status matches", &rpcerror.Error{Code: rpcerror.CodeNotFound, Status: 404}, true},
		{"fallback status differs", &rpcerror.Error{Code: rpcerror.CodeNotFound, Status: 410}, false},
		{"valid data", &rpcerror.Error{Code: rpcerror.CodeConflict, Status: 409, Data: map[string]any{"name": "earth"}}, true},
		{"invalid data", &rpcerror.Error{Code: rpcerror.CodeConflict, Status: 409, Data: map[string]any{}, Defined: true}, false},
		{"configured status only", &rpcerror.Error{Code: rpcerror.CodeForbidden, Status: 403, Defined: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.err.Defined
			got := rpcerror.ValidateAgainstMap(context.Background(), m, tt.err)
			if got.Defined != tt.wantDefined {
				t.Errorf("Defined = %v, want %v", got.Defined, tt.wantDefined)
			}
			if tt.err.Defined != before {
				t.Error("input error was mutated")
			}
		})
	}
}

func TestValidateAgainstMap_TransformsData(t *testing.T) {
	m := rpcerror.ErrorMap{
		"LIMITED": {Status: 429, Data: schema.Object{Fields: []schema.Field{
			{Name: "retry", Type: schema.TypeInteger},
		}}},
	}
	e := &rpcerror.Error{Code: "LIMITED", Status: 429, Data: map[string]any{"retry": "5"}}

	got := rpcerror.ValidateAgainstMap(context.Background(), m, e)
	if !got.Defined {
		t.Fatal("expected defined error")
	}
	if got.Data.(map[string]any)["retry"] != int64(5) {
		t.Errorf("Data = %v, want transformed retry", got.Data)
	}
}

func TestBuildConstructors(t *testing.T) {
	c := rpcerror.BuildConstructors(rpcerror.ErrorMap{
		rpcerror.CodeNotFound: {Message: "planet not found"},
		"RATE":                {Status: 429},
	})

	e := c[rpcerror.CodeNotFound](rpcerror.ConstructorOptions{})
	if !e.Defined || e.Status != 404 || e.Message != "planet not found" {
		t.Errorf("NOT_FOUND = %+v", e)
	}

	e = c.New("RATE", rpcerror.ConstructorOptions{Message: "slow down", Data: 3})
	if !e.Defined || e.Status != 429 || e.Message != "slow down" || e.Data != 3 {
		t.Errorf("RATE = %+v", e)
	}

	e = c.New(rpcerror.CodeConflict, rpcerror.ConstructorOptions{})
	if e.Defined || e.Status != 409 {
		t.Errorf("undeclared CONFLICT = %+v", e)
	}
}

func TestFrom(t *testing.T) {
	plain := errors.New("disk full")
	e := rpcerror.From(plain)
	if e.Code != rpcerror.CodeInternalServerError || e.Defined {
		t.Errorf("From(plain) = %+v", e)
	}
	if !errors.Is(e, plain) {
		t.Error("cause not preserved")
	}

	orig := rpcerror.Make(rpcerror.CodeForbidden, "no")
	if got := rpcerror.From(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Errorf("From(wrapped) = %v, want original", got)
	}

	if got := rpcerror.From(context.Canceled); got.Status != 499 {
		t.Errorf("From(Canceled).Status = %d", got.Status)
	}
	if got := rpcerror.From(context.DeadlineExceeded); got.Code != rpcerror.CodeTimeout {
		t.Errorf("From(DeadlineExceeded).Code = %s", got.Code)
	}
	if rpcerror.From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
}

func TestKindOf(t *testing.T) {
	cfg := &rpcerror.ConfigurationError{Path: []string{"a"}, Reason: "missing"}
	input := &schema.ValidationError{Stage: schema.StageInput}
	output := &schema.ValidationError{Stage: schema.StageOutput}

	tests := []struct {
		name string
		err  error
		want rpcerror.Kind
	}{
		{"nil", nil, rpcerror.KindNone},
		{"configuration", rpcerror.From(cfg), rpcerror.KindConfiguration},
		{"input", rpcerror.Must(rpcerror.CodeBadRequest, rpcerror.Options{Cause: input}), rpcerror.KindInputValidation},
		{"output", rpcerror.Must(rpcerror.CodeInternalServerError, rpcerror.Options{Cause: output}), rpcerror.KindOutputValidation},
		{"declared", &rpcerror.Error{Code: "X", Status: 400, Defined: true}, rpcerror.KindDeclared},
		{"undeclared", errors.New("boom"), rpcerror.KindUndeclared},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rpcerror.KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_JSON(t *testing.T) {
	e := &rpcerror.Error{Code: "X", Status: 400, Message: "bad", Defined: true, Cause: errors.New("hidden")}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"code":"X","status":400,"message":"bad","defined":true}`
	if string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}
}
