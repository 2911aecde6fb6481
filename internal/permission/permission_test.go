package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWildcardOnly(t *testing.T) {
	rules := []string{"*"}

	for _, path := range []string{"accounts.identify", "core.help", "x", "plugins.a.b.c.d"} {
		assert.True(t, Check(path, rules), path)
	}
	for _, path := range []string{"irc", "irc.autoop", "IRC.autoop.dalnet.#chan"} {
		assert.False(t, Check(path, rules), path)
	}
}

func TestLongerDenyOverridesShorterAllow(t *testing.T) {
	rules := []string{"a.b", "-a.b.c"}

	assert.False(t, Check("a.b.c", rules))
	assert.False(t, Check("a.b.c.d", rules))
	assert.True(t, Check("a.b.d", rules))
	assert.True(t, Check("a.b", rules))
	assert.False(t, Check("a", rules))

	// Declaration order does not matter when specificity differs.
	assert.False(t, Check("a.b.c", []string{"-a.b.c", "a.b"}))
}

func TestLongerAllowOverridesShorterDeny(t *testing.T) {
	rules := []string{"-accounts", "accounts.identify"}

	assert.True(t, Check("accounts.identify", rules))
	assert.False(t, Check("accounts.delete", rules))
}

func TestTrailingWildcard(t *testing.T) {
	rules := []string{"irc.autoop.*"}

	assert.True(t, Check("irc.autoop.dalnet.#cbot", rules))
	assert.True(t, Check("irc.autoop", rules))
	assert.False(t, Check("irc.autovoice.dalnet.#cbot", rules))

	// "x.*" and "x" are equally specific, so the later one wins.
	assert.False(t, Check("x.y", []string{"x.*", "-x"}))
	assert.True(t, Check("x.y", []string{"-x", "x.*"}))
}

func TestWildcardLosesToAnyMoreSpecificRule(t *testing.T) {
	rules := []string{"*", "-core.shutdown"}

	assert.True(t, Check("core.help", rules))
	assert.False(t, Check("core.shutdown", rules))
}

func TestIrcNamespaceNeedsExplicitGrant(t *testing.T) {
	assert.True(t, Check("irc.autoop.dalnet.#cbot", []string{"*", "irc"}))
	assert.False(t, Check("irc.autoop.dalnet.#cbot", []string{"*", "-irc.autoop"}))
}

func TestCaseInsensitive(t *testing.T) {
	assert.True(t, Check("Accounts.Identify", []string{"accounts.IDENTIFY"}))
}

func TestNoRulesDenies(t *testing.T) {
	assert.False(t, Check("core.help"))
	assert.False(t, Check("core.help", nil, []string{}))
}

func TestMalformedRulesDoNotMatch(t *testing.T) {
	for _, rule := range []string{"", "-", "a..b", "a.*.b", ".a", "a.", "a*"} {
		assert.NotPanics(t, func() { Check("a.b", []string{rule}) }, rule)
		assert.False(t, Check("a.b", []string{rule}), rule)
	}
	assert.False(t, Check("", []string{"a"}))
}

func TestCrossAccountTieDenies(t *testing.T) {
	assert.False(t, Check("a.b", []string{"a.b"}, []string{"-a.b"}))
	assert.False(t, Check("a.b", []string{"-a.b"}, []string{"a.b"}))
	// A more specific allow from another account still wins.
	assert.True(t, Check("a.b", []string{"-a"}, []string{"a.b"}))
}

func TestValid(t *testing.T) {
	for _, rule := range []string{"*", "-*", "a", "a.b", "-a.b.*", "irc.autoop.dalnet.#chan"} {
		assert.True(t, Valid(rule), rule)
	}
	for _, rule := range []string{"", "-", "a..b", "a.*.b", "a*", "a b"} {
		assert.False(t, Valid(rule), rule)
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "accounts.identify", Resolve("accounts", ".identify"))
	assert.Equal(t, "irc.autoop", Resolve("accounts", "irc.autoop"))
}
