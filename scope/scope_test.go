package scope

import (
	"reflect"
	"strings"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Scope{Name: "read", Description: "Read access"},
		Scope{Name: "write", Description: "Write access"},
		Scope{Name: "admin", Description: "Administrative access", Dangerous: true},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		scopes []Scope
	}{
		{name: "empty name", scopes: []Scope{{Name: ""}}},
		{name: "whitespace in name", scopes: []Scope{{Name: "bad scope"}}},
		{name: "duplicate", scopes: []Scope{{Name: "read"}, {Name: "read"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.scopes...); err == nil {
				t.Error("NewRegistry() expected error, got nil")
			}
		})
	}
}

func TestRegistry_Validate(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name      string
		requested []string
		allowed   []string
		wantErr   bool
		errSubstr string
	}{
		{
			name:      "subset of allowed",
			requested: []string{"read"},
			allowed:   []string{"read", "write"},
		},
		{
			name:      "exact allowed set",
			requested: []string{"read", "write"},
			allowed:   []string{"read", "write"},
		},
		{
			name:      "empty request is valid",
			requested: nil,
			allowed:   []string{"read"},
		},
		{
			name:      "unknown scope",
			requested: []string{"missing"},
			allowed:   []string{"read", "missing"},
			wantErr:   true,
			errSubstr: "unknown scope",
		},
		{
			name:      "known but not allowed",
			requested: []string{"admin"},
			allowed:   []string{"read"},
			wantErr:   true,
			errSubstr: "not allowed",
		},
		{
			name:      "empty allowed set imposes no client restriction",
			requested: []string{"admin"},
			allowed:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.requested, tt.allowed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errSubstr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.errSubstr)
			}
		})
	}
}

func TestRegistry_Dangerous(t *testing.T) {
	r := testRegistry(t)

	if r.IsDangerous("read") {
		t.Error("read should not be dangerous")
	}
	if !r.IsDangerous("admin") {
		t.Error("admin should be dangerous")
	}
	if r.IsDangerous("unknown") {
		t.Error("unknown scope should not report dangerous")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := testRegistry(t)
	want := []string{"admin", "read", "write"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []string
		want     bool
	}{
		{name: "covers", granted: []string{"read", "write"}, required: []string{"read"}, want: true},
		{name: "exact", granted: []string{"read"}, required: []string{"read"}, want: true},
		{name: "missing", granted: []string{"read"}, required: []string{"write"}, want: false},
		{name: "empty required", granted: nil, required: nil, want: true},
		{name: "empty granted", granted: nil, required: []string{"read"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(tt.granted, tt.required); got != tt.want {
				t.Errorf("Satisfies(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestSubset(t *testing.T) {
	if !Subset([]string{"read"}, []string{"read", "write"}) {
		t.Error("narrowing should be a subset")
	}
	if Subset([]string{"read", "admin"}, []string{"read"}) {
		t.Error("widening should not be a subset")
	}
}

func TestSplitJoin(t *testing.T) {
	if got := Split("read  write"); !reflect.DeepEqual(got, []string{"read", "write"}) {
		t.Errorf("Split() = %v", got)
	}
	if got := Split(""); len(got) != 0 {
		t.Errorf("Split(\"\") = %v, want empty", got)
	}
	if got := Join([]string{"read", "write"}); got != "read write" {
		t.Errorf("Join() = %q", got)
	}
}
