package uritemplate

import "testing"

func TestMatch(t *testing.T) {
	t.Parallel()

	tpl := Parse("greeting://{name}")
	vars, ok := tpl.Match("greeting://alice")
	if !ok {
		t.Fatal("expected match")
	}
	if vars["name"] != "alice" {
		t.Fatalf("got %q, want alice", vars["name"])
	}

	if _, ok := tpl.Match("greeting://alice/extra"); ok {
		t.Fatal("expected segment-count mismatch to fail")
	}
}

func TestBest_PrefersLiteralOverVariable(t *testing.T) {
	t.Parallel()

	literal := Parse("config://app/settings")
	variable := Parse("config://app/{name}")

	best, _, ok := Best([]*Template{variable, literal}, "config://app/settings")
	if !ok {
		t.Fatal("expected a match")
	}
	if best != literal {
		t.Fatalf("expected literal template to win, got %q", best.String())
	}
}

func TestBest_NoMatch(t *testing.T) {
	t.Parallel()

	tpl := Parse("config://app/{name}")
	_, _, ok := Best([]*Template{tpl}, "other://thing")
	if ok {
		t.Fatal("expected no match")
	}
}
