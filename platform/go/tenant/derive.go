package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// maxSlugLength is the DNS label limit; slugs double as subdomains.
const maxSlugLength = 63

// NormalizeSlug trims whitespace, lowercases the value, and ensures it is a
// valid subdomain label that does not shadow a fixed portal.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}
	if len(normalized) > maxSlugLength {
		return "", fmt.Errorf("invalid slug %q: longer than %d characters", input, maxSlugLength)
	}
	if _, reserved := reservedLabels[normalized]; reserved {
		return "", fmt.Errorf("slug %q is reserved", normalized)
	}

	return normalized, nil
}

// NormalizeDomain lowercases a custom domain and strips any port or trailing dot.
func NormalizeDomain(input string) (string, error) {
	domain := normalizeHost(input)
	if domain == "" || !strings.Contains(domain, ".") {
		return "", fmt.Errorf("invalid custom domain %q", input)
	}
	return domain, nil
}
