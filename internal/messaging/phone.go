package messaging

import "strings"

// NormalizeWhatsAppID strips everything but digits, the form WhatsApp uses
// for wa_id and recipient numbers.
func NormalizeWhatsAppID(value string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(value) {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
