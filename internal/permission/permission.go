// Package permission evaluates dot-separated permission paths against
// account permission rules.
//
// Rule grammar: ["-"] segment ("." segment)*, where the last segment may be
// "*". A bare "*" grants everything outside the "irc" namespace.
package permission

import "strings"

// Wildcard is the universal grant token.
const Wildcard = "*"

// ProtectedNamespace is never granted by a bare Wildcard rule.
const ProtectedNamespace = "irc"

type verdict struct {
	matched     bool
	specificity int
	allow       bool
}

// Check reports whether the permission path is granted by the rule sets.
// Each rule set is the ordered rule list of one account.
//
// The matching rule with the highest specificity decides. Inside one rule
// set, the later of two equally specific rules wins. Across rule sets, an
// equally specific allow and deny resolve to deny. No matching rule denies.
func Check(path string, ruleSets ...[]string) bool {
	fields := strings.Split(path, ".")

	var best verdict
	for _, rules := range ruleSets {
		v := evaluate(fields, rules)
		if !v.matched {
			continue
		}
		switch {
		case !best.matched, v.specificity > best.specificity:
			best = v
		case v.specificity == best.specificity && !v.allow:
			best.allow = false
		}
	}
	return best.matched && best.allow
}

// evaluate finds the deciding rule within a single ordered rule set.
func evaluate(fields []string, rules []string) verdict {
	var best verdict
	for _, rule := range rules {
		specificity, allow, ok := match(fields, rule)
		if !ok {
			continue
		}
		if !best.matched || specificity >= best.specificity {
			best = verdict{matched: true, specificity: specificity, allow: allow}
		}
	}
	return best
}

// match compares one rule against the path fields. It returns the number of
// literal segments matched and the rule's polarity.
func match(fields []string, rule string) (specificity int, allow bool, ok bool) {
	if rule == Wildcard {
		if strings.EqualFold(fields[0], ProtectedNamespace) {
			return 0, false, false
		}
		return 0, true, true
	}

	allow = true
	if strings.HasPrefix(rule, "-") {
		allow = false
		rule = rule[1:]
	}
	if rule == "" {
		return 0, false, false
	}

	segments := strings.Split(rule, ".")
	for i, segment := range segments {
		if segment == Wildcard {
			if i != len(segments)-1 {
				return 0, false, false
			}
			return i, allow, true
		}
		if i >= len(fields) || segment == "" || !strings.EqualFold(segment, fields[i]) {
			return 0, false, false
		}
	}
	return len(segments), allow, true
}

// Valid reports whether rule follows the permission rule grammar.
func Valid(rule string) bool {
	if rule == Wildcard {
		return true
	}
	rule = strings.TrimPrefix(rule, "-")
	if rule == "" {
		return false
	}
	segments := strings.Split(rule, ".")
	for i, segment := range segments {
		if segment == "" || strings.ContainsAny(segment, " \t") {
			return false
		}
		if strings.Contains(segment, Wildcard) && (segment != Wildcard || i != len(segments)-1) {
			return false
		}
	}
	return true
}

// Resolve expands a plugin-relative permission (one starting with ".") by
// prefixing the plugin key. Other permissions are returned unchanged.
func Resolve(pluginKey, permission string) string {
	if strings.HasPrefix(permission, ".") {
		return pluginKey + permission
	}
	return permission
}
