package command

import (
	"regexp"
	"strings"
)

// Invocation is a chat line parsed as a candidate command.
type Invocation struct {
	// PluginKey restricts the search to one plugin ("key:label" syntax).
	PluginKey string
	Label     string
	// Prefix is the command prefix that was stripped, if any.
	Prefix     string
	Parameters string
	// Addressed is set when the line started with the bot's nickname.
	Addressed bool
	// Text is the line with nickname addressing removed but any prefix
	// kept. Triggers match against it.
	Text string
}

// addressPattern matches "nick" followed by optional dots, an optional
// ':', ',' or '-', and a space.
func addressPattern(nickname string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(nickname) + `\.*[:,\-]? +`)
}

// StripAddress removes a leading nickname address from text.
func StripAddress(text, nickname string) (string, bool) {
	if nickname == "" {
		return text, false
	}
	if loc := addressPattern(nickname).FindStringIndex(text); loc != nil {
		return text[loc[1]:], true
	}
	return text, false
}

// Parse splits a chat line into a command invocation. It reports false when
// the line is not a command: nothing remains after stripping, or a prefix
// was required and neither a prefix nor nickname addressing was found.
// The returned Invocation always carries Text and Addressed, even when the
// line is not a command, so that triggers can still be evaluated.
func Parse(text, nickname string, prefixes []string, requirePrefix bool) (Invocation, bool) {
	var inv Invocation
	text, inv.Addressed = StripAddress(text, nickname)
	inv.Text = text

	rest := text
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(rest, p) {
			inv.Prefix = p
			rest = rest[len(p):]
			break
		}
	}

	if inv.Prefix == "" && !inv.Addressed && requirePrefix {
		return inv, false
	}

	label, params, _ := strings.Cut(rest, " ")
	inv.Parameters = strings.TrimSpace(params)
	if key, l, ok := strings.Cut(label, ":"); ok && key != "" && l != "" {
		inv.PluginKey, label = key, l
	}
	inv.Label = label
	if inv.Label == "" {
		return inv, false
	}
	return inv, true
}

// SplitArgs splits parameters into at most max whitespace-separated fields;
// the last field keeps the rest of the text. A negative max means no limit.
func SplitArgs(params string, max int) []string {
	params = strings.TrimSpace(params)
	if params == "" || max == 0 {
		return nil
	}
	if max < 0 {
		return strings.Fields(params)
	}

	var args []string
	for len(args) < max-1 {
		field, rest, found := strings.Cut(params, " ")
		args = append(args, field)
		params = strings.TrimLeft(rest, " ")
		if !found || params == "" {
			return args
		}
	}
	return append(args, params)
}
