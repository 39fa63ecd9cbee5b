package sanitize

import "regexp"

// Plain email addresses (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +xx..., (xxx) xxx-xxxx, etc.
// Only digits, spaces, minus, dots, parens and plus; at least 9 digits total
// so short figures in free text are left alone.
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-\.()]{7,}\d`)

// RedactPII strips emails and phone numbers from free text before it is
// shown in list previews or activity descriptions.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllString(s, "[redacted phone]")
	return s
}

// Summary truncates text for listings, breaking on a word boundary.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && i < len(s) && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return s[:i] + "…"
}
