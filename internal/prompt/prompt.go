// Package prompt renders the task prompts sent to LLM providers. All
// functions are pure: same input, byte-identical output, no I/O.
package prompt

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// DefaultLanguage is the display name used when a language code is not in the
// supported table. Unknown codes never fail a request.
const DefaultLanguage = "English"

var languageNames = map[string]string{
	"en": "English",
	"zh": "Chinese",
	"ms": "Malay",
	"vi": "Vietnamese",
	"my": "Burmese",
	"ta": "Tamil",
}

// LanguageName resolves a supported language code to its display name,
// falling back to DefaultLanguage for anything else.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return DefaultLanguage
}

// SupportedLanguages returns the closed set of supported language codes.
func SupportedLanguages() []string {
	return []string{"en", "zh", "ms", "vi", "my", "ta"}
}

// DescriptionData is the structured input for a description prompt. It doubles
// as the data passed to tenant template overrides.
type DescriptionData struct {
	ItemName    string
	Ingredients []string
	Cuisine     string
	Dietary     []string
	Allergens   []string
	SpiceLevel  string
	Language    string // language code, resolved to a display name at render time
}

// BuildDescription renders the menu description prompt. Optional lines are
// emitted only when their source collection is non-empty.
func BuildDescription(itemName string, ingredients []string, cuisine string, dietary, allergens []string, spiceLevel, languageCode string) string {
	lang := LanguageName(languageCode)

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert food writer specializing in %s cuisine. Create an appetizing, sales-optimized menu description for %q in %s.\n\n", cuisine, itemName, lang)
	fmt.Fprintf(&b, "INGREDIENTS: %s\n", strings.Join(ingredients, ", "))
	if len(dietary) > 0 {
		fmt.Fprintf(&b, "DIETARY INFO: %s\n", strings.Join(dietary, ", "))
	}
	if len(allergens) > 0 {
		fmt.Fprintf(&b, "ALLERGENS: %s\n", strings.Join(allergens, ", "))
	}
	if spiceLevel != "" {
		fmt.Fprintf(&b, "SPICE LEVEL: %s\n", spiceLevel)
	}
	b.WriteString("\nREQUIREMENTS:\n")
	b.WriteString("- 2-3 sentences maximum (80-120 words)\n")
	b.WriteString("- Focus on flavors, textures, and cooking methods\n")
	b.WriteString("- Use sensory language that makes people hungry\n")
	b.WriteString("- Highlight premium or unique ingredients\n")
	b.WriteString("- Include cultural context if relevant\n")
	b.WriteString("- Make it sound irresistible and worth the price\n")
	fmt.Fprintf(&b, "- Write in %s only\n\n", lang)
	b.WriteString("Generate the description now:")
	return b.String()
}

// RenderDescriptionTemplate renders a tenant-supplied template override. A
// template that fails to parse or execute falls back to the builtin prompt,
// keeping the builder total.
func RenderDescriptionTemplate(override string, data DescriptionData) string {
	builtin := BuildDescription(data.ItemName, data.Ingredients, data.Cuisine, data.Dietary, data.Allergens, data.SpiceLevel, data.Language)
	if override == "" {
		return builtin
	}
	tpl, err := template.New("description").Parse(override)
	if err != nil {
		return builtin
	}
	resolved := data
	resolved.Language = LanguageName(data.Language)
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, resolved); err != nil {
		return builtin
	}
	return buf.String()
}

// BuildTranslation renders the translation prompt. The mandated NAME/
// DESCRIPTION output format is what ParseTranslation extracts.
func BuildTranslation(itemName, description, targetLanguageCode, cuisine string) string {
	lang := LanguageName(targetLanguageCode)

	var b strings.Builder
	fmt.Fprintf(&b, "Translate this %s menu item to %s. Maintain the appetizing tone and cultural accuracy.\n\n", cuisine, lang)
	fmt.Fprintf(&b, "ITEM NAME: %s\n", itemName)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n\n", description)
	b.WriteString("Requirements:\n")
	b.WriteString("- Keep the same length and appetizing style\n")
	b.WriteString("- Use appropriate cultural food terms\n")
	b.WriteString("- Maintain the premium/quality feeling\n")
	b.WriteString("- Return in this exact format:\n\n")
	b.WriteString("NAME: [translated name]\n")
	b.WriteString("DESCRIPTION: [translated description]\n\n")
	b.WriteString("Translate now:")
	return b.String()
}

const (
	maxMenuPreviewItems   = 10
	maxPreviewDescription = 100
)

type MenuItem struct {
	Name        string
	Category    string
	Price       string
	Description string
}

type RestaurantInfo struct {
	Name        string
	Address     string
	Cuisine     string
	Description string
}

type ChatMessage struct {
	Role    string
	Content string
}

// BuildChat renders the menu assistant prompt: restaurant identity, a bounded
// menu preview, the full conversation history, and the new query.
func BuildChat(query string, menu []MenuItem, info RestaurantInfo, history []ChatMessage) string {
	cuisine := info.Cuisine
	if cuisine == "" {
		cuisine = "diverse"
	}
	specialty := info.Description
	if specialty == "" {
		specialty = "Great food with excellent service"
	}

	preview := menu
	if len(preview) > maxMenuPreviewItems {
		preview = preview[:maxMenuPreviewItems]
	}
	lines := make([]string, 0, len(preview))
	for _, item := range preview {
		lines = append(lines, fmt.Sprintf("%s (%s) - $%s: %s", item.Name, item.Category, item.Price, truncate(item.Description, maxPreviewDescription)))
	}

	historyLines := make([]string, 0, len(history))
	for _, msg := range history {
		historyLines = append(historyLines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly, knowledgeable menu assistant for %s, specializing in %s cuisine.\n\n", info.Name, cuisine)
	b.WriteString("RESTAURANT INFO:\n")
	fmt.Fprintf(&b, "- Name: %s\n", info.Name)
	fmt.Fprintf(&b, "- Location: %s\n", info.Address)
	fmt.Fprintf(&b, "- Specialty: %s\n\n", specialty)
	b.WriteString("POPULAR MENU ITEMS:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nCONVERSATION HISTORY:\n")
	b.WriteString(strings.Join(historyLines, "\n"))
	fmt.Fprintf(&b, "\n\nCUSTOMER QUERY: %s\n\n", query)
	b.WriteString("Respond helpfully about our menu, ingredients, dietary options, recommendations, or restaurant info. Be warm, conversational, and focus on making great recommendations. If asked about items not on our menu, politely redirect to our available options.\n\n")
	b.WriteString("Response:")
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

var (
	nameRe = regexp.MustCompile(`(?i)NAME:\s*(.+)`)
	descRe = regexp.MustCompile(`(?i)DESCRIPTION:\s*(.+)`)
)

// ParseTranslation extracts the NAME/DESCRIPTION fields from a provider
// response using first-match-per-field. A missing name resolves to the empty
// string; a missing description resolves to the full raw response. Callers
// depend on both values being non-nil.
func ParseTranslation(response string) (name, description string) {
	if m := nameRe.FindStringSubmatch(response); m != nil {
		name = strings.TrimSpace(m[1])
	}
	if m := descRe.FindStringSubmatch(response); m != nil {
		description = strings.TrimSpace(m[1])
	} else {
		description = strings.TrimSpace(response)
	}
	return name, description
}
