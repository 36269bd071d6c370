// Package check implements the two nationally defined check-digit
// algorithms the synchronizer needs: the modulo-11 verifier digit for
// tax ids and the GS1 check digit for GTIN product codes.
package check

import (
	"strconv"
	"strings"
)

const mod11Base = 11

// TaxIDCheckDigit computes the modulo-11 verifier digit for a tax id.
// Letters are expanded to their ASCII codes first, matching the
// authority's handling of ids that end in a letter.
func TaxIDCheckDigit(taxID string) int {
	var expanded strings.Builder
	for _, r := range strings.ToUpper(taxID) {
		if r >= '0' && r <= '9' {
			expanded.WriteRune(r)
		} else {
			expanded.WriteString(strconv.Itoa(int(r)))
		}
	}

	digits := expanded.String()
	k := 2
	total := 0
	for i := len(digits) - 1; i >= 0; i-- {
		if k > mod11Base {
			k = 2
		}
		total += int(digits[i]-'0') * k
		k++
	}

	rest := total % mod11Base
	if rest > 1 {
		return mod11Base - rest
	}
	return 0
}

// ValidGTIN reports whether code is a well-formed GTIN-8, GTIN-12,
// GTIN-13 or GTIN-14 with a correct check digit. Invalid codes are
// omitted from payloads, never corrected.
func ValidGTIN(code string) bool {
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}

	// GTIN-8 weighting starts at 3 on the leftmost digit, the longer
	// forms start at 1, alternating 3 and 1 either way.
	weight := 1
	if len(code) == 8 {
		weight = 3
	}
	sum := 0
	for i := 0; i < len(code)-1; i++ {
		sum += int(code[i]-'0') * weight
		weight = 4 - weight
	}

	control := (10 - sum%10) % 10
	return control == int(code[len(code)-1]-'0')
}
