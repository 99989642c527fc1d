package schema

import "testing"

func TestBuildAndValidate(t *testing.T) {
	t.Parallel()

	fields := []Field{
		{Name: "message", Kind: KindString, Required: true},
		{Name: "count", Kind: KindInteger},
	}
	doc := Build(fields)

	g := NewGenerator()
	if _, err := g.Compile("echo", doc); err != nil {
		t.Fatalf("compile: %v", err)
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"message": "hi"}, false},
		{"missing required", map[string]any{}, true},
		{"wrong type", map[string]any{"message": "hi", "count": "nope"}, true},
		{"unknown root field", map[string]any{"message": "hi", "bogus": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := g.Validate("echo", tt.args)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if tt.wantErr && len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			if !tt.wantErr && len(errs) != 0 {
				t.Fatalf("expected no validation errors, got %+v", errs)
			}
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	if _, err := g.Validate("missing", nil); err == nil {
		t.Fatal("expected error for uncompiled schema name")
	}
}
