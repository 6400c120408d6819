// Package messaging builds outbound parent messages: phone normalisation,
// WhatsApp deep links, message templates and AI-assisted drafts.
package messaging

import (
	"net/url"
	"strings"
)

const (
	countryCode = "94"
	waBase      = "https://wa.me/"
)

// FormatSLNumber normalises a Sri Lankan phone number to its 94-prefixed
// digit form. Numbers that match no rule are returned as digits only,
// without rejection.
func FormatSLNumber(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case len(digits) == 9:
		return countryCode + digits
	default:
		return digits
	}
}

// WhatsAppLink returns https://wa.me/<number>?text=<message> with the number
// normalised and the message percent-encoded (spaces as %20).
func WhatsAppLink(phone, text string) string {
	link := waBase + FormatSLNumber(phone)
	if text == "" {
		return link
	}
	return link + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}
