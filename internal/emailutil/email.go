package emailutil

import "strings"

// Normalize normalizes an email address for consistent comparison
// by converting to lowercase and trimming whitespace
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// DomainAllowed reports whether email belongs to one of domains. An empty
// domain list allows every address.
func DomainAllowed(email string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	domain := ExtractDomain(Normalize(email))
	if domain == "" {
		return false
	}
	for _, d := range domains {
		if strings.EqualFold(domain, d) {
			return true
		}
	}
	return false
}
