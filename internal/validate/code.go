package validate

import (
	"strings"
)

const MaxCodeLength = 64

// NormalizeCode strips surrounding whitespace and upper-cases the code the way
// customers tend to mistype it.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks an already normalized code.
func ValidateCode(code string) bool {
	if code == "" || len(code) > MaxCodeLength {
		return false
	}
	for _, c := range code {
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
