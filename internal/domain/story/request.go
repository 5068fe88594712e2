package story

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Length is the requested story length tier.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

func (l Length) String() string {
	return string(l)
}

// Valid reports whether l is one of the known tiers.
func (l Length) Valid() bool {
	switch l {
	case LengthShort, LengthMedium, LengthLong:
		return true
	}
	return false
}

// Minutes returns the read-aloud duration hint of the tier.
func (l Length) Minutes() string {
	switch l {
	case LengthShort:
		return "5-10 minutes"
	case LengthMedium:
		return "10-15 minutes"
	case LengthLong:
		return "more than 15 minutes"
	}
	return ""
}

// Paragraphs returns the rough paragraph count asked of the generator.
func (l Length) Paragraphs() string {
	switch l {
	case LengthShort:
		return "4 to 6"
	case LengthMedium:
		return "6 to 9"
	case LengthLong:
		return "9 to 12"
	}
	return ""
}

// ParseLength accepts tier names as well as the duration labels shown by the
// web form ("5-10 min", "10-15 min", ">15 min").
func ParseLength(s string) (Length, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "–", "-")
	switch v {
	case "short", "5-10 min", "5-10":
		return LengthShort, nil
	case "medium", "10-15 min", "10-15":
		return LengthMedium, nil
	case "long", ">15 min", ">15":
		return LengthLong, nil
	}
	return "", &InvalidParameterError{Field: "length", Value: s, Reason: "expected short, medium or long"}
}

// Language is one of the supported story locales.
type Language struct {
	tag language.Tag
}

var (
	English    = Language{tag: language.English}
	Indonesian = Language{tag: language.Indonesian}
	German     = Language{tag: language.German}
)

// SupportedLanguages lists the locales stories can be generated in.
func SupportedLanguages() []Language {
	return []Language{English, Indonesian, German}
}

var (
	languageMatcher = language.NewMatcher([]language.Tag{language.English, language.Indonesian, language.German})

	languageNames = map[string]Language{
		"english":          English,
		"bahasa":           Indonesian,
		"bahasa indonesia": Indonesian,
		"indonesian":       Indonesian,
		"german":           German,
		"deutsch":          German,
	}
)

// ParseLanguage accepts an English display name ("English", "Bahasa",
// "German"), a native name, or a BCP 47 tag such as "de-AT".
func ParseLanguage(s string) (Language, error) {
	v := strings.TrimSpace(s)
	if l, ok := languageNames[strings.ToLower(v)]; ok {
		return l, nil
	}
	tag, err := language.Parse(v)
	if err != nil {
		return Language{}, &InvalidParameterError{Field: "language", Value: s, Reason: "unknown language"}
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf < language.High {
		return Language{}, &InvalidParameterError{Field: "language", Value: s, Reason: "unsupported language"}
	}
	return SupportedLanguages()[idx], nil
}

// Tag returns the BCP 47 tag, e.g. for speech synthesis.
func (l Language) Tag() language.Tag {
	return l.tag
}

// Code returns the base language code ("en", "id", "de").
func (l Language) Code() string {
	base, _ := l.tag.Base()
	return base.String()
}

// IsZero reports whether l was never set.
func (l Language) IsZero() bool {
	return l.tag == language.Und
}

// String returns the English display name of the language.
func (l Language) String() string {
	if l.IsZero() {
		return ""
	}
	return display.English.Tags().Name(l.tag)
}

// DefaultTitle returns the placeholder title in this language.
func (l Language) DefaultTitle() string {
	switch l {
	case Indonesian:
		return "Cerita Ajaib"
	case German:
		return "Zaubergeschichte"
	}
	return DefaultTitle
}

// EmptyStoryText is the lone paragraph used when generated text is blank.
func (l Language) EmptyStoryText() string {
	switch l {
	case Indonesian:
		return "Pada suatu hari..."
	case German:
		return "Es war einmal..."
	}
	return "Once upon a time..."
}

// GenerationRequest holds the parameters of one "Generate" action.
type GenerationRequest struct {
	Category string
	Length   Length
	Language Language
	Moral    string
}

// NewRequest validates the raw form values and builds a request.
func NewRequest(category, length, lang, moral string) (GenerationRequest, error) {
	l, err := ParseLength(length)
	if err != nil {
		return GenerationRequest{}, err
	}
	lng, err := ParseLanguage(lang)
	if err != nil {
		return GenerationRequest{}, err
	}
	req := GenerationRequest{
		Category: strings.TrimSpace(category),
		Length:   l,
		Language: lng,
		Moral:    strings.TrimSpace(moral),
	}
	return req, req.Validate()
}

// Validate checks an already built request.
func (r GenerationRequest) Validate() error {
	if r.Category == "" {
		return &InvalidParameterError{Field: "category", Value: r.Category, Reason: "must not be empty"}
	}
	if !r.Length.Valid() {
		return &InvalidParameterError{Field: "length", Value: string(r.Length), Reason: "expected short, medium or long"}
	}
	if r.Language.IsZero() {
		return &InvalidParameterError{Field: "language", Value: "", Reason: "must be set"}
	}
	return nil
}

// RandomCategory reports whether the generator should pick the topic itself.
func (r GenerationRequest) RandomCategory() bool {
	return strings.EqualFold(r.Category, "random")
}
