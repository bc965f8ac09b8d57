package article

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSubArticle_AppendBody(t *testing.T) {
	var s SubArticle
	s.AppendBody("")
	s.AppendBody("first")
	s.AppendBody("")
	s.AppendBody("second")

	if s.BodyText != "first\nsecond" {
		t.Errorf("BodyText = %q, want %q", s.BodyText, "first\nsecond")
	}
}

func TestArticle_SetKeywords(t *testing.T) {
	var a Article
	a.SetKeywords([]string{"ecology", "", "oceans", "ecology"})

	if len(a.Keywords) != 2 {
		t.Fatalf("Keywords = %v, want 2 entries", a.Keywords)
	}
	if a.Keywords[0] != "ecology" || a.Keywords[1] != "oceans" {
		t.Errorf("Keywords = %v, want [ecology oceans]", a.Keywords)
	}
}

func TestArticle_SetKeywordsEmptyIsNotNull(t *testing.T) {
	var a Article
	a.SetKeywords(nil)

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"keywords":[]`) {
		t.Errorf("keywords should serialise as an empty list, got %s", data)
	}
}

func TestSubArticle_JSONOmitsBody(t *testing.T) {
	s := SubArticle{
		ID:                     "X.r11",
		Type:                   TypeReview,
		Round:                  1,
		Reviewer:               &Reviewer{Number: 1, Name: AnonymousReviewer},
		BodyText:               "Thank you for...",
		SupplementaryMaterials: []SupplementaryMaterial{},
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got := string(data)
	if strings.Contains(got, "Thank you") {
		t.Errorf("body text leaked into JSON: %s", got)
	}
	if !strings.Contains(got, `"reviewer":{"number":1,"name":"Anonymous"}`) {
		t.Errorf("reviewer missing from JSON: %s", got)
	}
	if strings.Contains(got, "replying_to") {
		t.Errorf("zero replying_to should be omitted: %s", got)
	}
}
