package project

import "strings"

const maxSlugLen = 50

// Slugify converts a description into a filesystem-safe project name.
// Example: "Add SSO login for admins" → "add-sso-login-for-admins"
//
// Lowercases, turns spaces and underscores into hyphens, drops anything
// else that is not alphanumeric, collapses hyphens and truncates to 50
// characters at a word boundary when possible. Empty input returns
// "unnamed-project".
func Slugify(description string) string {
	s := strings.ToLower(strings.TrimSpace(description))

	var b strings.Builder
	prevHyphen := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevHyphen = false
		case r == ' ' || r == '_' || r == '-':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "unnamed-project"
	}
	if len(slug) <= maxSlugLen {
		return slug
	}

	truncated := slug[:maxSlugLen]
	if lastHyphen := strings.LastIndex(truncated, "-"); lastHyphen > maxSlugLen/2 {
		truncated = truncated[:lastHyphen]
	}
	return strings.TrimRight(truncated, "-")
}

// ValidName reports whether name is already a slug.
func ValidName(name string) bool {
	return name != "" && Slugify(name) == name
}
