package validator

import (
	"regexp"
	"strings"

	"github.com/OpenGG/rc4me/internal/rc/domain"
	"github.com/OpenGG/rc4me/internal/rc/paths"
)

var (
	reservedNamePattern = regexp.MustCompile(`^(?i)(con|prn|aux|nul|com[1-9]|lpt[1-9])$`)
	invalidCharsPattern = regexp.MustCompile(`[<>:"/\\|?*]`)
)

// Validator validates configuration directory names before they are created
// inside the management root.
type Validator struct{}

// New creates a new Validator instance.
func New() *Validator {
	return &Validator{}
}

// ValidateName validates a configuration name for safety and compatibility.
//
// The function checks for:
//   - Empty names or whitespace-only names
//   - Dot navigation (. or ..)
//   - Null bytes and other non-printable ASCII characters
//   - Invalid filesystem characters (<>:"/\|?*)
//   - Names that would shadow a slot (init, prev, current) or a staging link
//   - Reserved Windows filenames (CON, PRN, AUX, NUL, COM1-9, LPT1-9)
//
// Returns (true, nil) if valid, or (false, error) with a descriptive error.
func (v *Validator) ValidateName(name string) (bool, error) {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) == 0 {
		return false, domain.ErrConfigNameEmpty
	}
	if trimmed == "." || trimmed == ".." {
		return false, domain.ErrConfigNameDot
	}

	if strings.ContainsRune(trimmed, 0) {
		return false, domain.ErrConfigNameNullByte
	}

	for _, r := range trimmed {
		if r < 0x20 || r >= 0x7f {
			return false, domain.ErrConfigNameNonPrintable
		}
	}
	if invalidCharsPattern.MatchString(trimmed) {
		return false, domain.ErrConfigNameInvalidChars
	}
	if trimmed == paths.InitDirName || paths.IsSlotName(trimmed) || paths.IsStagingName(trimmed) {
		return false, domain.ErrConfigNameReserved
	}
	if reservedNamePattern.MatchString(trimmed) {
		return false, domain.ErrConfigNameReserved
	}
	return true, nil
}

// NormalizeName trims whitespace and validates the name.
func (v *Validator) NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if ok, err := v.ValidateName(trimmed); !ok {
		return "", err
	}
	return trimmed, nil
}
