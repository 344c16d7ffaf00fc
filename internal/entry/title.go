package entry

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTitle derives a display title from a model id such as
// "openai/gpt-4o-mini" when no catalog name is available.
func DefaultTitle(model string) string {
	model = strings.TrimSpace(model)
	if idx := strings.LastIndex(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}
	model, _, _ = strings.Cut(model, ":")
	words := strings.FieldsFunc(model, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	if len(words) == 0 {
		return "OpenRouter"
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// Slug converts a title into an entity object id: lower case ASCII letters,
// digits and single underscores.
func Slug(title string) string {
	lowered := cases.Lower(language.Und).String(strings.TrimSpace(title))
	var b strings.Builder
	pendingSep := false
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
