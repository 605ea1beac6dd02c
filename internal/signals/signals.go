// Package signals classifies a free-text work description into risk signal
// categories and derives a 0-7 complexity score from it.
//
// Scoring is a pure function of its inputs. Callers persist the Result.
// An empty or signal-free description is not an error: it produces the
// degraded needs_clarification result with complexity 0 so that the caller
// can ask for more detail before planning anything expensive.
package signals

import (
	"sort"
	"strings"
)

// Signal category labels.
const (
	Security       = "security"
	Performance    = "performance"
	Ambiguity      = "ambiguity"
	Architecture   = "architecture"
	Data           = "data"
	Infrastructure = "infrastructure"
	Compliance     = "compliance"
	Integration    = "integration"
	UX             = "ux"
	Testing        = "testing"

	// NeedsClarification is the degraded-confidence label returned when
	// no category could be detected.
	NeedsClarification = "needs_clarification"
)

// MaxComplexity is the upper bound of every complexity score.
const MaxComplexity = 7

// categoryKeywords is the fixed detection vocabulary. Keywords are matched
// case-insensitively on word boundaries; multi-word keywords match as phrases.
var categoryKeywords = map[string][]string{
	Security: {
		"security", "secure", "auth", "authentication", "authorization", "oauth", "jwt",
		"token", "tokens", "password", "passwords", "encryption", "encrypt", "secret",
		"secrets", "vulnerability", "xss", "csrf", "injection", "permission",
		"permissions", "rbac", "credential", "credentials", "login",
	},
	Performance: {
		"performance", "latency", "throughput", "slow", "scale", "scaling",
		"scalability", "cache", "caching", "optimize", "optimization", "memory",
		"cpu", "benchmark", "load",
	},
	Ambiguity: {
		"unclear", "maybe", "possibly", "somehow", "tbd", "figure out", "not sure",
		"unsure", "investigate", "vague", "something like",
	},
	Architecture: {
		"architecture", "refactor", "redesign", "restructure", "module", "modules",
		"microservice", "microservices", "framework", "plugin", "abstraction", "layer",
		"monolith",
	},
	Data: {
		"database", "schema", "migration", "migrate", "data", "sql", "table", "tables",
		"index", "backup", "storage", "etl", "backfill",
	},
	Infrastructure: {
		"infrastructure", "deploy", "deployment", "kubernetes", "k8s", "docker",
		"terraform", "ci", "cluster", "cloud", "aws", "gcp", "azure", "server",
		"servers", "network", "platform",
	},
	Compliance: {
		"compliance", "gdpr", "hipaa", "soc2", "pci", "audit", "regulation",
		"regulatory", "legal", "privacy", "retention", "pii",
	},
	Integration: {
		"integration", "integrate", "api", "webhook", "webhooks", "third-party",
		"external", "sdk", "endpoint", "endpoints", "payment", "payments",
	},
	UX: {
		"ui", "ux", "user interface", "frontend", "screen", "page", "form",
		"accessibility", "a11y", "layout", "dashboard",
	},
	Testing: {
		"test", "tests", "testing", "coverage", "e2e", "regression", "flaky", "qa",
	},
}

// Categories returns the detection vocabulary in sorted order.
func Categories() []string {
	out := make([]string, 0, len(categoryKeywords))
	for c := range categoryKeywords {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// IsCategory reports whether label is part of the vocabulary, including
// the degraded needs_clarification label.
func IsCategory(label string) bool {
	if label == NeedsClarification {
		return true
	}
	_, ok := categoryKeywords[label]
	return ok
}

// Detect returns the sorted set of categories whose keywords appear in text.
// A category fires once no matter how many of its keywords match.
func Detect(text string) []string {
	norm := normalize(text)
	if norm == "" {
		return nil
	}
	var found []string
	for category, keywords := range categoryKeywords {
		if countMatches(norm, keywords) > 0 {
			found = append(found, category)
		}
	}
	sort.Strings(found)
	return found
}

// normalize lowercases text and replaces every run of non-alphanumeric
// characters with a single space. The result is padded with one space on
// each side so that phrase lookups can anchor on word boundaries.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	prevSpace := true
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}
	s := b.String()
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if !prevSpace {
		s += " "
	}
	return s
}

// countMatches counts how many distinct keywords occur in a normalized text.
func countMatches(norm string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(norm, normalize(kw)) {
			n++
		}
	}
	return n
}
