package command

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrefixed(t *testing.T) {
	inv, ok := Parse("!foo bar baz", "CBot", []string{"!"}, true)
	require.True(t, ok)
	assert.Equal(t, "", inv.PluginKey)
	assert.Equal(t, "foo", inv.Label)
	assert.Equal(t, "!", inv.Prefix)
	assert.Equal(t, "bar baz", inv.Parameters)
	assert.False(t, inv.Addressed)
	assert.Equal(t, "!foo bar baz", inv.Text)
}

func TestParseNicknameAddressed(t *testing.T) {
	for _, line := range []string{
		"botname: foo bar",
		"BotName, foo bar",
		"botname... foo bar",
		"botname- foo bar",
		"botname foo bar",
		"botname:   foo bar",
	} {
		inv, ok := Parse(line, "botname", []string{"!"}, true)
		require.True(t, ok, line)
		assert.True(t, inv.Addressed, line)
		assert.Equal(t, "", inv.Prefix, line)
		assert.Equal(t, "foo", inv.Label, line)
		assert.Equal(t, "bar", inv.Parameters, line)
	}
}

func TestParseAddressedAndPrefixed(t *testing.T) {
	inv, ok := Parse("CBot: !help me", "CBot", []string{"!"}, true)
	require.True(t, ok)
	assert.True(t, inv.Addressed)
	assert.Equal(t, "!", inv.Prefix)
	assert.Equal(t, "help", inv.Label)
	assert.Equal(t, "!help me", inv.Text)
}

func TestParseGlobalSyntax(t *testing.T) {
	inv, ok := Parse("!plugin:cmd x", "CBot", []string{"!"}, true)
	require.True(t, ok)
	assert.Equal(t, "plugin", inv.PluginKey)
	assert.Equal(t, "cmd", inv.Label)
	assert.Equal(t, "x", inv.Parameters)

	inv, ok = Parse("!:cmd", "CBot", []string{"!"}, true)
	require.True(t, ok)
	assert.Equal(t, "", inv.PluginKey)
	assert.Equal(t, ":cmd", inv.Label)
}

func TestParseNotACommand(t *testing.T) {
	inv, ok := Parse("hello there", "CBot", []string{"!"}, true)
	assert.False(t, ok)
	assert.Equal(t, "hello there", inv.Text)

	_, ok = Parse("!", "CBot", []string{"!"}, true)
	assert.False(t, ok)

	// The nickname must be followed by a space to count as addressing.
	inv, ok = Parse("CBotfoo bar", "CBot", []string{"!"}, true)
	assert.False(t, ok)
	assert.False(t, inv.Addressed)
}

func TestParsePrivateNeedsNoPrefix(t *testing.T) {
	inv, ok := Parse("identify secret", "CBot", []string{"!"}, false)
	require.True(t, ok)
	assert.Equal(t, "identify", inv.Label)
	assert.Equal(t, "secret", inv.Parameters)
}

func TestParseMultiplePrefixes(t *testing.T) {
	inv, ok := Parse("~roll 2d6", "CBot", []string{"!", "~"}, true)
	require.True(t, ok)
	assert.Equal(t, "~", inv.Prefix)
	assert.Equal(t, "roll", inv.Label)
}

func TestSplitArgs(t *testing.T) {
	assert.Nil(t, SplitArgs("", 3))
	assert.Nil(t, SplitArgs("a b", 0))
	assert.Equal(t, []string{"a b  c"}, SplitArgs("a b  c", 1))
	assert.Equal(t, []string{"a", "b  c"}, SplitArgs("a  b  c", 2))
	assert.Equal(t, []string{"a", "b"}, SplitArgs("a b", 5))
	assert.Equal(t, []string{"a", "b", "c"}, SplitArgs(" a b  c ", -1))
}

func TestRegistryRejectsDuplicateAliases(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddCommand(&Command{Aliases: []string{"identify", "id"}}))
	assert.ErrorIs(t, r.AddCommand(&Command{Aliases: []string{"ID"}}), ErrDuplicateAlias)
	assert.Error(t, r.AddCommand(&Command{}))

	c, ok := r.Command("Identify")
	require.True(t, ok)
	assert.Equal(t, "identify", c.Name)
	assert.True(t, c.HasAlias("ID"))
	assert.Len(t, r.Commands(), 1)
}

func TestTriggerMatch(t *testing.T) {
	tr := &Trigger{Patterns: []*regexp.Regexp{
		regexp.MustCompile(`^nope$`),
		regexp.MustCompile(`(?i)^hello,? (\w+)`),
	}}
	assert.Equal(t, []string{"Hello world", "world"}, tr.Match("Hello world"))
	assert.Nil(t, tr.Match("goodbye"))
}

func TestBaseScope(t *testing.T) {
	b := NewBase("p", []string{"dalnet/#cbot", "#shared", "libera/*", "dalnet/pm"})

	assert.True(t, b.IsActiveTarget(Target{Network: "DALnet", Channel: "#CBot"}))
	assert.False(t, b.IsActiveTarget(Target{Network: "efnet", Channel: "#cbot"}))
	assert.True(t, b.IsActiveTarget(Target{Network: "efnet", Channel: "#shared"}))
	assert.True(t, b.IsActiveTarget(Target{Network: "libera", Channel: "#any"}))
	assert.True(t, b.IsActiveTarget(Target{Network: "libera"}))
	assert.True(t, b.IsActiveTarget(Target{Network: "dalnet"}))
	assert.False(t, b.IsActiveTarget(Target{Network: "efnet"}))

	all := NewBase("q", []string{"*"})
	assert.True(t, all.IsActiveTarget(Target{Network: "efnet"}))
}

type namedPlugin struct{ Base }

func newNamedPlugin(key string) *namedPlugin {
	return &namedPlugin{Base: NewBase(key, []string{"*"})}
}

func TestPickHighestPriority(t *testing.T) {
	five := &Command{Aliases: []string{"info"}, Priority: func(*Context) int { return 5 }}
	ten := &Command{Aliases: []string{"info"}, Priority: func(*Context) int { return 10 }}
	a, b := newNamedPlugin("a"), newNamedPlugin("b")

	winner, ok := Pick([]*Candidate{
		{Plugin: a, Command: five, Context: &Context{}},
		{Plugin: b, Command: ten, Context: &Context{}},
	})
	require.True(t, ok)
	assert.Equal(t, "b", winner.Plugin.Key())
}

func TestPickTiesKeepCollectionOrder(t *testing.T) {
	first := &Command{Aliases: []string{"info"}}
	second := &Command{Aliases: []string{"info"}}

	winner, ok := Pick([]*Candidate{
		{Plugin: newNamedPlugin("a"), Command: first, Context: &Context{}},
		{Plugin: newNamedPlugin("b"), Command: second, Context: &Context{}},
	})
	require.True(t, ok)
	assert.Equal(t, "a", winner.Plugin.Key())

	_, ok = Pick(nil)
	assert.False(t, ok)
}

func TestPriorityCanConsultContext(t *testing.T) {
	cmd := &Command{Aliases: []string{"roll"}, Priority: func(ctx *Context) int {
		if ctx.Target.Private() {
			return 1
		}
		return 20
	}}
	other := &Command{Aliases: []string{"roll"}, Priority: func(*Context) int { return 10 }}

	inChannel := &Context{Target: Target{Network: "n", Channel: "#c"}}
	winner, _ := Pick([]*Candidate{
		{Plugin: newNamedPlugin("other"), Command: other, Context: inChannel},
		{Plugin: newNamedPlugin("dice"), Command: cmd, Context: inChannel},
	})
	assert.Equal(t, "dice", winner.Plugin.Key())

	inPrivate := &Context{Target: Target{Network: "n"}}
	winner, _ = Pick([]*Candidate{
		{Plugin: newNamedPlugin("other"), Command: other, Context: inPrivate},
		{Plugin: newNamedPlugin("dice"), Command: cmd, Context: inPrivate},
	})
	assert.Equal(t, "other", winner.Plugin.Key())
}

type recordingConn struct {
	privmsgs []string
	notices  []string
}

func (r *recordingConn) Network() string     { return "dalnet" }
func (r *recordingConn) CurrentNick() string { return "CBot" }
func (r *recordingConn) Privmsg(target, text string) error {
	r.privmsgs = append(r.privmsgs, target+" "+text)
	return nil
}
func (r *recordingConn) Notice(target, text string) error {
	r.notices = append(r.notices, target+" "+text)
	return nil
}

func TestContextReplies(t *testing.T) {
	conn := &recordingConn{}
	ctx := &Context{
		Conn:   conn,
		Target: Target{Network: "dalnet", Channel: "#cbot"},
		Plugin: newNamedPlugin("accounts"),
	}
	ctx.Sender.Nickname = "alice"
	var asked string
	ctx.Permission = func(p string) bool { asked = p; return true }

	ctx.Replyf("hi %s", "there")
	err := ctx.Fail("nope")
	assert.True(t, IsFailure(err))
	assert.True(t, ctx.HasPermission(".identify"))

	assert.Equal(t, []string{"#cbot hi there"}, conn.privmsgs)
	assert.Equal(t, []string{"alice nope"}, conn.notices)
	assert.Equal(t, "accounts.identify", asked)

	ctx.Target.Channel = ""
	ctx.Reply("private")
	assert.Equal(t, "alice private", conn.privmsgs[1])
}
