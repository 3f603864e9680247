package ledger

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	StartingLevel    = int64(1)
	StartingVitality = int64(100)
	StartingStamina  = int64(100)

	DefaultLanguage = "en"

	maxDisplayNameLen  = 64
	maxCategoryLen     = 32
	maxResourceNameLen = 128
	maxLabelLen        = 128
)

// Field names a numeric attribute the ledger can adjust.
type Field string

const (
	FieldBalance    Field = "balance"
	FieldExperience Field = "experience"
	FieldLevel      Field = "level"
	FieldVitality   Field = "vitality"
	FieldStamina    Field = "stamina"
)

var (
	itemCodeRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	kindRE     = regexp.MustCompile(`^[a-z][a-z0-9_]{1,31}$`)
)

var blockedNameFragments = []string{
	"admin",
	"moderator",
}

var languages = map[string]struct{}{
	"en": {},
	"es": {},
}

func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FieldBalance, FieldExperience, FieldLevel, FieldVitality, FieldStamina:
		return f, nil
	}
	return "", invalidf("unknown field %q", s)
}

// Clamped reports whether debits below the floor are clamped rather than
// rejected. Currency is never clamped: an overdraft fails with InsufficientFunds.
func (f Field) Clamped() bool {
	return f != FieldBalance
}

func (f Field) floor() int64 {
	if f == FieldLevel {
		return StartingLevel
	}
	return 0
}

// ApplyDelta computes the stored value of field after adding delta to current.
func ApplyDelta(field Field, current, delta int64) (int64, error) {
	if delta > 0 && current > math.MaxInt64-delta {
		return 0, invalidf("%s overflow", field)
	}
	next := current + delta
	floor := field.floor()
	if next >= floor {
		return next, nil
	}
	if !field.Clamped() {
		return 0, Errorf(CodeInsufficientFunds, "", "insufficient funds: balance %d, debit %d", current, -delta)
	}
	return floor, nil
}

// ValidatePlayerID checks that id is a UUID owner key and returns its canonical form.
func ValidatePlayerID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", invalidf("player id must be a valid UUID")
	}
	return parsed.String(), nil
}

func normalizeLanguage(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return DefaultLanguage, nil
	}
	if _, ok := languages[lang]; !ok {
		return "", invalidf("unsupported language %q", lang)
	}
	return lang, nil
}

func validateDisplayName(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "", invalidf("display name is required")
	}
	if len(clean) > maxDisplayNameLen {
		return "", invalidf("display name too long (max %d chars)", maxDisplayNameLen)
	}
	for _, r := range clean {
		if unicode.IsControl(r) {
			return "", invalidf("display name contains control characters")
		}
	}
	lower := strings.ToLower(clean)
	for _, fragment := range blockedNameFragments {
		if strings.Contains(lower, fragment) {
			return "", invalidf("display name contains blocked content")
		}
	}
	return clean, nil
}

func validateCategory(category string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(category))
	if len(clean) > maxCategoryLen {
		return "", invalidf("category too long (max %d chars)", maxCategoryLen)
	}
	return clean, nil
}

func validateResourceName(name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "", invalidf("resource name is required")
	}
	if len(clean) > maxResourceNameLen {
		return "", invalidf("resource name too long (max %d chars)", maxResourceNameLen)
	}
	return clean, nil
}

// NormalizeItemCode lowercases code and checks it against the item code format.
func NormalizeItemCode(code string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(code))
	if !itemCodeRE.MatchString(clean) {
		return "", invalidf("invalid item code %q", code)
	}
	return clean, nil
}

func normalizeKind(kind string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(kind))
	if !kindRE.MatchString(clean) {
		return "", invalidf("invalid kind %q", kind)
	}
	return clean, nil
}

func validateLabel(label string) (string, error) {
	clean := strings.TrimSpace(label)
	if len(clean) > maxLabelLen {
		return "", invalidf("label too long (max %d chars)", maxLabelLen)
	}
	return clean, nil
}

func validateCount(name string, v int64) error {
	if v < 0 {
		return invalidf("%s must be >= 0", name)
	}
	return nil
}
