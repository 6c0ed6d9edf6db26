package domain

type Language string

const (
	LanguageEnglish    Language = "en"
	LanguageSpanish    Language = "es"
	LanguagePortuguese Language = "pt"
	LanguageFrench     Language = "fr"

	DefaultLanguage = LanguageEnglish
)

// ParseLanguage maps a locale code to a supported language. An empty code
// selects the default.
func ParseLanguage(code string) (Language, error) {
	switch Language(code) {
	case "":
		return DefaultLanguage, nil
	case LanguageEnglish, LanguageSpanish, LanguagePortuguese, LanguageFrench:
		return Language(code), nil
	default:
		return "", NewValidationError("language", "unsupported language %q", code)
	}
}

// OrDefault returns l, or the default language when l is empty or unknown.
func (l Language) OrDefault() Language {
	if parsed, err := ParseLanguage(string(l)); err == nil {
		return parsed
	}
	return DefaultLanguage
}
