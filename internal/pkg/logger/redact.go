package logger

import "strings"

// RedactNumber masks a phone number for safe logging, keeping the prefix and
// the last two digits.
// "+15550100123" → "+1555***23"
// Numbers with fewer than 7 digits are fully masked.
func RedactNumber(number string) string {
	var digits []rune
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 7 {
		return "***"
	}
	prefix := ""
	if strings.HasPrefix(strings.TrimSpace(number), "+") {
		prefix = "+"
	}
	return prefix + string(digits[:4]) + "***" + string(digits[len(digits)-2:])
}
