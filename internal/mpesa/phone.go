package mpesa

import (
	"strings"
	"unicode"
)

// NormalizePhone turns a Vodacom number into 258XXXXXXXXX. Only 84 and 85
// prefixes are M-Pesa wallets; other operators are rejected.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 9 && digits[0] == '8':
		digits = "258" + digits
	case len(digits) == 12 && strings.HasPrefix(digits, "258"):
	default:
		return "", ErrInvalidPhone
	}

	if !strings.HasPrefix(digits, "25884") && !strings.HasPrefix(digits, "25885") {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
