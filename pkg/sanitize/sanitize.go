package sanitize

import "regexp"

// Email biasa (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Telepon yang umum: +258 84 123 4567, 841234567, (21) 123-456, dsb.
// Minimal 9 digit total agar tidak terlalu agresif.
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-\.()]{7,}\d`)

// RedactPII masks emails and phone numbers in free text written by clients,
// e.g. rating comments shown publicly on a lawyer profile.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// Potong ringkasan untuk listing
func Summary(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	i := max
	for i > 0 && r[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return string(r[:i]) + "…"
}
