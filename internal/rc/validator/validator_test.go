package validator

// Configuration names become directories inside the management root. These
// tests keep them from escaping the root or shadowing the slot links.

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenGG/rc4me/internal/rc/domain"
)

func TestValidateName_ValidNames(t *testing.T) {
	v := New()

	validNames := []string{
		"dotfiles",
		"jeffmm_vimrc",
		"my-rc",
		"rc123",
		"v1.2.3",
		"UPPERCASE",
		"with.multiple.dots",
		".hidden",
		"initial",
		"current-work",
	}

	for _, name := range validNames {
		t.Run(name, func(t *testing.T) {
			valid, err := v.ValidateName(name)
			assert.True(t, valid)
			assert.NoError(t, err)
		})
	}
}

func TestValidateName_Rejected(t *testing.T) {
	v := New()

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty string", "", domain.ErrConfigNameEmpty},
		{"only spaces", "   ", domain.ErrConfigNameEmpty},
		{"newline", "\n", domain.ErrConfigNameEmpty},
		{"single dot", ".", domain.ErrConfigNameDot},
		{"double dot", "..", domain.ErrConfigNameDot},
		{"null byte", "rc\x00x", domain.ErrConfigNameNullByte},
		{"bell", "rc\x07", domain.ErrConfigNameNonPrintable},
		{"delete", "rc\x7f", domain.ErrConfigNameNonPrintable},
		{"unicode", "配置", domain.ErrConfigNameNonPrintable},
		{"slash", "owner/name", domain.ErrConfigNameInvalidChars},
		{"backslash", `a\b`, domain.ErrConfigNameInvalidChars},
		{"colon", "a:b", domain.ErrConfigNameInvalidChars},
		{"init slot", "init", domain.ErrConfigNameReserved},
		{"prev slot", "prev", domain.ErrConfigNameReserved},
		{"current slot", "current", domain.ErrConfigNameReserved},
		{"staging link", ".rc4me-tmp-current", domain.ErrConfigNameReserved},
		{"windows con", "CON", domain.ErrConfigNameReserved},
		{"windows lpt", "lpt1", domain.ErrConfigNameReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := v.ValidateName(tt.input)
			assert.False(t, valid)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateName_SlotNamesAreCaseSensitive(t *testing.T) {
	v := New()
	valid, err := v.ValidateName("Current")
	assert.True(t, valid)
	assert.NoError(t, err)
}

func TestNormalizeName_TrimsAndValidates(t *testing.T) {
	v := New()

	got, err := v.NormalizeName("  dotfiles\t")
	require.NoError(t, err)
	assert.Equal(t, "dotfiles", got)

	_, err = v.NormalizeName(" prev ")
	assert.ErrorIs(t, err, domain.ErrConfigNameReserved)
}
