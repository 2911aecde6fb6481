package auth

import (
	"strings"

	"github.com/tidwall/match"
)

// MatchMask reports whether s matches the glob mask, where '*' matches any
// run of characters and '?' matches exactly one. Matching ignores case.
func MatchMask(mask, s string) bool {
	return match.Match(strings.ToLower(s), strings.ToLower(mask))
}
