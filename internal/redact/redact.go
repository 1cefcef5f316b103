package redact

import (
	"regexp"
	"strings"
)

const (
	placeholder     = "[REDACTED]"
	cardPlaceholder = "[REDACTED CARD]"
	ibanPlaceholder = "[REDACTED IBAN]"
)

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	// Generic API keys (long hex/base64 strings after common key patterns)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// Generic secrets/tokens/passwords in assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Private key blocks
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+)?PRIVATE KEY-----`),
	// Provider API keys
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}`),
	// Connection strings with inline credentials
	regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^/\s:@]+:[^/\s@]+@[^\s]+`),
}

// cardPattern finds 13-19 digit runs, optionally grouped by spaces or dashes.
var cardPattern = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

// ibanPattern finds IBAN-shaped tokens such as "DE89 3704 0044 0532 0130 00".
var ibanPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`)

// Secrets replaces detected credentials in text with [REDACTED].
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllString(result, placeholder)
	}
	return result
}

// CardNumbers replaces digit runs that pass the Luhn check. Long reference
// numbers that fail the check are left alone.
func CardNumbers(text string) string {
	return cardPattern.ReplaceAllStringFunc(text, func(match string) string {
		if luhnValid(digitsOnly(match)) {
			return cardPlaceholder
		}
		return match
	})
}

// IBANs replaces account numbers that pass the ISO 13616 mod-97 check.
func IBANs(text string) string {
	return ibanPattern.ReplaceAllStringFunc(text, func(match string) string {
		if ibanValid(strings.ReplaceAll(match, " ", "")) {
			return ibanPlaceholder
		}
		return match
	})
}

// Text applies every redaction to finding text. IBANs go before card
// numbers since a grouped IBAN tail can look like a card.
func Text(text string) string {
	return CardNumbers(IBANs(Secrets(text)))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func luhnValid(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func ibanValid(iban string) bool {
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return false
		}
	}
	return rem == 1
}
