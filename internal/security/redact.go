package security

import "regexp"

// Replacement tokens substituted for detected PII.
const (
	emailRedacted = "[EMAIL_REDACTED]"
	phoneRedacted = "[PHONE_REDACTED]"
	idRedacted    = "[ID_REDACTED]"
	cardRedacted  = "[CARD_REDACTED]"
	ipRedacted    = "[IP_REDACTED]"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// phonePattern matches common US/international phone formats: optional
	// leading +, optional country/area code in parens, 7-15 digits total
	// separated by spaces, dots, or dashes.
	phonePattern = regexp.MustCompile(`\+?\(?\d{1,4}\)?[\s.\-]?\(?\d{2,4}\)?(?:[\s.\-]?\d{2,4}){1,3}`)

	// idPattern matches SSN-shaped national IDs (123-45-6789) and similar
	// dash-grouped numeric identifiers of 9 digits.
	idPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// cardCandidatePattern finds runs of 13-19 digits, optionally grouped by
	// spaces or dashes, that are then verified with the Luhn checksum before
	// being redacted so we don't clobber unrelated long numbers.
	cardCandidatePattern = regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`)

	ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)
	ipv6Pattern = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`)
)

// RedactPII scans text for emails, phone numbers, national IDs, Luhn-valid
// card numbers, and IP addresses, replacing each with its redaction token.
// It is applied before storage and before prompt assembly.
func RedactPII(text string) string {
	text = emailPattern.ReplaceAllString(text, emailRedacted)
	text = idPattern.ReplaceAllString(text, idRedacted)
	text = cardCandidatePattern.ReplaceAllStringFunc(text, func(match string) string {
		if isLuhnValid(match) {
			return cardRedacted
		}
		return match
	})
	text = ipv6Pattern.ReplaceAllString(text, ipRedacted)
	text = ipv4Pattern.ReplaceAllString(text, ipRedacted)
	text = phonePattern.ReplaceAllStringFunc(text, func(match string) string {
		if countDigits(match) >= 7 {
			return phoneRedacted
		}
		return match
	})
	return text
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// isLuhnValid reports whether the digits in s (stripping spaces and dashes)
// pass the Luhn checksum used by major card networks.
func isLuhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
			continue
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
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
