package phases

import "sort"

// signalSpecialists maps each signal category to the specialist roles that
// should be engaged when it fires.
var signalSpecialists = map[string][]string{
	"security":            {"security-engineer"},
	"performance":         {"performance-engineer"},
	"ambiguity":           {"product-manager"},
	"architecture":        {"architect"},
	"data":                {"data-engineer"},
	"infrastructure":      {"sre"},
	"compliance":          {"compliance-officer"},
	"integration":         {"integration-engineer"},
	"ux":                  {"ux-designer"},
	"testing":             {"qa-engineer"},
	"needs_clarification": {"product-manager"},
}

// SpecialistsFor returns the sorted, de-duplicated specialist roles for the
// given signals. Unknown signals contribute nothing.
func SpecialistsFor(signals []string) []string {
	set := make(map[string]bool)
	for _, s := range signals {
		for _, role := range signalSpecialists[s] {
			set[role] = true
		}
	}
	out := make([]string, 0, len(set))
	for role := range set {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
