package prompt

import (
	"strings"
	"testing"
)

func TestBuildDescription_Idempotent(t *testing.T) {
	a := BuildDescription("Buckwheat Fried Chicken", []string{"chicken", "buckwheat"}, "Asian-fusion", nil, []string{"gluten", "eggs"}, "mild", "en")
	b := BuildDescription("Buckwheat Fried Chicken", []string{"chicken", "buckwheat"}, "Asian-fusion", nil, []string{"gluten", "eggs"}, "mild", "en")
	if a != b {
		t.Error("Expected byte-identical prompts for identical input")
	}
}

func TestBuildDescription_OptionalLines(t *testing.T) {
	p := BuildDescription("Laksa", []string{"noodles", "coconut milk"}, "Malaysian", nil, nil, "", "en")
	if strings.Contains(p, "DIETARY INFO:") {
		t.Error("Expected no dietary line for empty dietary tags")
	}
	if strings.Contains(p, "ALLERGENS:") {
		t.Error("Expected no allergen line for empty allergens")
	}
	if strings.Contains(p, "SPICE LEVEL:") {
		t.Error("Expected no spice line for empty spice level")
	}

	p = BuildDescription("Laksa", []string{"noodles"}, "Malaysian", []string{"halal"}, []string{"shellfish"}, "hot", "en")
	if !strings.Contains(p, "DIETARY INFO: halal") {
		t.Errorf("Missing dietary line: %s", p)
	}
	if !strings.Contains(p, "ALLERGENS: shellfish") {
		t.Errorf("Missing allergen line: %s", p)
	}
	if !strings.Contains(p, "SPICE LEVEL: hot") {
		t.Errorf("Missing spice line: %s", p)
	}
	if !strings.Contains(p, "INGREDIENTS: noodles") {
		t.Errorf("Missing ingredient line: %s", p)
	}
}

func TestLanguageName_Fallback(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"en", "English"},
		{"zh", "Chinese"},
		{"ms", "Malay"},
		{"vi", "Vietnamese"},
		{"my", "Burmese"},
		{"ta", "Tamil"},
		{"xx", "English"},
		{"", "English"},
	}
	for _, tt := range tests {
		if got := LanguageName(tt.code); got != tt.want {
			t.Errorf("LanguageName(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestBuildDescription_UnknownLanguage(t *testing.T) {
	p := BuildDescription("Pho", []string{"beef"}, "Vietnamese", nil, nil, "", "klingon")
	if !strings.Contains(p, "Write in English only") {
		t.Errorf("Expected unknown language to fall back to English: %s", p)
	}
}

func TestBuildTranslation(t *testing.T) {
	p := BuildTranslation("Spicy Noodles", "A fiery classic.", "zh", "Sichuan")
	if !strings.Contains(p, "to Chinese") {
		t.Errorf("Expected Chinese directive: %s", p)
	}
	if !strings.Contains(p, "ITEM NAME: Spicy Noodles") {
		t.Errorf("Missing item name: %s", p)
	}
	if !strings.Contains(p, "NAME: [translated name]") {
		t.Errorf("Missing output format mandate: %s", p)
	}
}

func TestParseTranslation(t *testing.T) {
	name, desc := ParseTranslation("NAME: Spicy Noodles\nDESCRIPTION: A fiery classic.")
	if name != "Spicy Noodles" {
		t.Errorf("Expected name 'Spicy Noodles', got %q", name)
	}
	if desc != "A fiery classic." {
		t.Errorf("Expected description 'A fiery classic.', got %q", desc)
	}
}

func TestParseTranslation_NoMarkers(t *testing.T) {
	raw := "some unstructured response"
	name, desc := ParseTranslation(raw)
	if name != "" {
		t.Errorf("Expected empty name, got %q", name)
	}
	if desc != raw {
		t.Errorf("Expected raw response as description, got %q", desc)
	}
}

func TestParseTranslation_CaseInsensitiveFirstMatch(t *testing.T) {
	name, desc := ParseTranslation("name: first\nname: second\ndescription: one\ndescription: two")
	if name != "first" {
		t.Errorf("Expected first match 'first', got %q", name)
	}
	if desc != "one" {
		t.Errorf("Expected first match 'one', got %q", desc)
	}
}

func TestBuildChat_BoundedPreview(t *testing.T) {
	menu := make([]MenuItem, 15)
	for i := range menu {
		menu[i] = MenuItem{
			Name:        "Dish",
			Category:    "Mains",
			Price:       "12.90",
			Description: strings.Repeat("x", 300),
		}
	}
	p := BuildChat("what is good here?", menu, RestaurantInfo{Name: "Nasi House", Address: "1 Jalan Besar"}, nil)

	if got := strings.Count(p, "Dish (Mains)"); got != 10 {
		t.Errorf("Expected 10 preview items, got %d", got)
	}
	if strings.Contains(p, strings.Repeat("x", 101)) {
		t.Error("Expected item descriptions truncated to 100 characters")
	}
	if !strings.Contains(p, "politely redirect") {
		t.Errorf("Missing off-menu redirection instruction: %s", p)
	}
}

func TestBuildChat_History(t *testing.T) {
	history := []ChatMessage{
		{Role: "user", Content: "any vegan options?"},
		{Role: "assistant", Content: "Yes, the tofu laksa."},
	}
	p := BuildChat("how spicy is it?", nil, RestaurantInfo{Name: "Nasi House"}, history)
	if !strings.Contains(p, "user: any vegan options?") {
		t.Errorf("Missing history entry: %s", p)
	}
	if !strings.Contains(p, "assistant: Yes, the tofu laksa.") {
		t.Errorf("Missing history entry: %s", p)
	}
	if !strings.Contains(p, "CUSTOMER QUERY: how spicy is it?") {
		t.Errorf("Missing query: %s", p)
	}
}

func TestRenderDescriptionTemplate_Override(t *testing.T) {
	got := RenderDescriptionTemplate("Describe {{.ItemName}} in {{.Language}}.", DescriptionData{
		ItemName: "Satay",
		Language: "ms",
	})
	if got != "Describe Satay in Malay." {
		t.Errorf("Unexpected rendered override: %q", got)
	}
}

func TestRenderDescriptionTemplate_BadTemplateFallsBack(t *testing.T) {
	data := DescriptionData{ItemName: "Satay", Ingredients: []string{"chicken"}, Cuisine: "Malaysian", Language: "en"}
	got := RenderDescriptionTemplate("{{.Broken", data)
	want := BuildDescription("Satay", []string{"chicken"}, "Malaysian", nil, nil, "", "en")
	if got != want {
		t.Error("Expected builtin prompt when override fails to parse")
	}
}
