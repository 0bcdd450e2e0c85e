package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"E164", "+15550001234", "+15550001234", false},
		{"Separators", " +1 (555) 000-1234 ", "+15550001234", false},
		{"Empty", "", "", true},
		{"No Plus", "15550001234", "", true},
		{"Leading Zero", "+05550001234", "", true},
		{"Too Short", "+1555", "", true},
		{"Too Long", "+1234567890123456", "", true},
		{"Letters", "+1555000abcd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateOTP(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateOTP("123456"))
	assert.NoError(t, ValidateOTP("000000"))
	assert.Error(t, ValidateOTP("12345"))
	assert.Error(t, ValidateOTP("1234567"))
	assert.Error(t, ValidateOTP("12a456"))
	assert.Error(t, ValidateOTP(""))
}

func TestValidateDescription(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateDescription(""))
	assert.NoError(t, ValidateDescription(strings.Repeat("é", 1000)))
	assert.Error(t, ValidateDescription(strings.Repeat("a", 1001)))
}

func TestValidatePMName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		pm      string
		wantErr bool
	}{
		{"Simple", "ada", false},
		{"Single Char", "a", false},
		{"With Space", "Ada Lovelace", false},
		{"Apostrophe", "D'Arcy", false},
		{"Blank", "   ", true},
		{"Empty", "", true},
		{"Leading Space", " ada", true},
		{"Symbols", "ada<script>", true},
		{"Too Long", strings.Repeat("a", 121), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePMName(tt.pm)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaskPhone(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "********1234", MaskPhone("+15550001234"))
	assert.Equal(t, "****", MaskPhone("123"))
}
