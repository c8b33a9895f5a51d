package logger

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// MaskEmail hides the local part of a contact email so enrollment and
// stage-change logs stay correlatable without naming the contact.
// "dana.reyes@example.com" becomes "da***@example.com"; local parts of two
// characters or fewer are masked entirely.
func MaskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "***@***"
	}
	local, host := addr[:at], addr[at+1:]
	if len(local) <= 2 {
		return "***@" + host
	}
	return local[:2] + "***@" + host
}

// maskValue applies contact-PII masking to one log field. Fields whose key
// names an email are masked outright; any other value is scanned for
// embedded addresses, which catches drop reasons and free-form notes.
func maskValue(key, val string) string {
	if strings.Contains(strings.ToLower(key), "email") {
		return MaskEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, MaskEmail)
}
