package irc

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndrioCelos/CBot-sub003/internal/accounts"
	"github.com/AndrioCelos/CBot-sub003/internal/auth"
	"github.com/AndrioCelos/CBot-sub003/internal/command"
	"github.com/AndrioCelos/CBot-sub003/internal/config"
	"github.com/AndrioCelos/CBot-sub003/internal/router"
)

type fakeSession struct {
	nick     string
	isupport map[string]string
	caps     map[string]string
	sent     []string
}

func (f *fakeSession) Send(command string, params ...string) error {
	f.sent = append(f.sent, strings.Join(append([]string{command}, params...), " "))
	return nil
}
func (f *fakeSession) CurrentNick() string                 { return f.nick }
func (f *fakeSession) SetNick(nick string)                 { f.nick = nick }
func (f *fakeSession) ISupport() map[string]string         { return f.isupport }
func (f *fakeSession) AcknowledgedCaps() map[string]string { return f.caps }

func newTestClient(t *testing.T, isupport map[string]string) (*Client, *fakeSession, *router.Core) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	core := router.New(accounts.NewStore(), router.Options{Logger: log})
	s := &fakeSession{nick: "CBot", isupport: isupport}
	c := newClient(config.Network{Name: "dalnet", Nick: "CBot", Alternate: "CBot_"}, core, log, s)
	core.Attach(c)
	return c, s, core
}

func feed(t *testing.T, handler func(ircmsg.Message), line string) {
	t.Helper()
	msg, err := ircmsg.ParseLine(line)
	require.NoError(t, err)
	handler(msg)
}

func TestChannelTracking(t *testing.T) {
	c, _, _ := newTestClient(t, map[string]string{"PREFIX": "(qaohv)~&@%+", "CHANMODES": "beI,k,l,imnpst"})

	feed(t, c.onJoin, ":CBot!bot@host JOIN #cbot")
	feed(t, c.onNames, ":server 353 CBot = #cbot :CBot @alice +bob")
	assert.Equal(t, auth.RankOp, c.ChannelRank("#CBot", "Alice"))
	assert.Equal(t, auth.RankVoice, c.ChannelRank("#cbot", "bob"))
	assert.Equal(t, auth.RankNone, c.ChannelRank("#elsewhere", "alice"))

	feed(t, c.onMode, ":alice!a@host MODE #cbot +q-v+b alice bob *!*@spam")
	assert.Equal(t, auth.RankOwner, c.ChannelRank("#cbot", "alice"))
	assert.Equal(t, auth.RankNone, c.ChannelRank("#cbot", "bob"))

	feed(t, c.onJoin, ":carol!c@host JOIN #cbot")
	assert.Equal(t, []string{"#cbot"}, c.SharedChannels("carol"))

	feed(t, c.onNick, ":carol!c@host NICK carol_")
	assert.Empty(t, c.SharedChannels("carol"))
	assert.Equal(t, []string{"#cbot"}, c.SharedChannels("carol_"))

	feed(t, c.onKick, ":alice!a@host KICK #cbot carol_ :bye")
	assert.Empty(t, c.SharedChannels("carol_"))

	feed(t, c.onPart, ":CBot!bot@host PART #cbot")
	assert.Empty(t, c.SharedChannels("alice"))
}

func TestIsChannel(t *testing.T) {
	c, _, _ := newTestClient(t, map[string]string{})
	assert.True(t, c.IsChannel("#cbot"))
	assert.True(t, c.IsChannel("&local"))
	assert.False(t, c.IsChannel("alice"))
	assert.False(t, c.IsChannel(""))

	c, _, _ = newTestClient(t, map[string]string{"CHANTYPES": "#"})
	assert.False(t, c.IsChannel("&local"))
}

type echoPlugin struct{ command.Base }

func TestPrivmsgRoutesToCore(t *testing.T) {
	c, s, core := newTestClient(t, map[string]string{})
	p := &echoPlugin{Base: command.NewBase("echo", []string{"*"})}
	p.Registry().MustAddCommands(&command.Command{
		Aliases: []string{"echo"},
		Handler: func(ctx *command.Context) error {
			ctx.Reply(ctx.Parameters())
			return nil
		},
	})
	require.NoError(t, core.AddPlugin(p))

	feed(t, c.onJoin, ":CBot!bot@host JOIN #cbot")
	feed(t, c.onPrivMsg, ":alice!a@host PRIVMSG #cbot :!echo hello world")
	feed(t, c.onPrivMsg, ":alice!a@host PRIVMSG CBot :echo private")
	feed(t, c.onPrivMsg, ":alice!a@host PRIVMSG CBot :\x01PING 1\x01")

	assert.Equal(t, []string{
		"PRIVMSG #cbot hello world",
		"PRIVMSG alice private",
	}, s.sent)
}

func TestLookupAccountViaWhois(t *testing.T) {
	c, s, _ := newTestClient(t, map[string]string{})

	var results []string
	record := func(account string, ok bool) {
		if ok {
			results = append(results, "ok:"+account)
		} else {
			results = append(results, "invalid")
		}
	}
	c.LookupAccount("Alice", record)
	c.LookupAccount("alice", record)
	assert.Equal(t, []string{"WHOIS Alice"}, s.sent)

	feed(t, c.onWhoisAccount, ":server 330 CBot Alice alice_acct :is logged in as")
	feed(t, c.onWhoisEnd, ":server 318 CBot Alice :End of /WHOIS list")
	assert.Equal(t, []string{"ok:alice_acct", "ok:alice_acct"}, results)

	// Not cached without account tracking.
	c.LookupAccount("alice", record)
	assert.Len(t, s.sent, 2)

	c.onDisconnect(ircmsg.Message{})
	assert.Equal(t, "invalid", results[len(results)-1])
}

func TestAccountTracking(t *testing.T) {
	c, s, _ := newTestClient(t, map[string]string{})
	feed(t, c.onJoin, ":CBot!bot@host JOIN #cbot * :CBot")
	feed(t, c.onJoin, ":alice!a@host JOIN #cbot alice_acct :Alice")
	feed(t, c.onJoin, ":bob!b@host JOIN #cbot * :Bob")

	var got []string
	c.LookupAccount("alice", func(account string, ok bool) { got = append(got, account) })
	c.LookupAccount("bob", func(account string, ok bool) { got = append(got, account) })
	assert.Equal(t, []string{"alice_acct", ""}, got)
	assert.Empty(t, s.sent)

	feed(t, c.onAccount, ":bob!b@host ACCOUNT bob_acct")
	msg, err := ircmsg.ParseLine(":bob!b@host PRIVMSG #cbot :hi")
	require.NoError(t, err)
	id, ok := c.identity(msg)
	require.True(t, ok)
	assert.True(t, id.AccountKnown)
	assert.Equal(t, "bob_acct", id.Account)

	msg, err = ircmsg.ParseLine("@account=carol_acct :carol!c@host PRIVMSG CBot :hi")
	require.NoError(t, err)
	id, _ = c.identity(msg)
	assert.Equal(t, "carol_acct", id.Account)
	assert.Equal(t, "carol!c@host", id.Hostmask())
}

func privmsgIdentity(t *testing.T, c *Client, line string) auth.Identity {
	t.Helper()
	msg, err := ircmsg.ParseLine(line)
	require.NoError(t, err)
	id, ok := c.identity(msg)
	require.True(t, ok)
	return id
}

func TestWhoisCachesOnlyVisibleNicks(t *testing.T) {
	c, s, _ := newTestClient(t, map[string]string{})
	feed(t, c.onJoin, ":CBot!bot@host JOIN #cbot * :CBot")
	feed(t, c.onNames, ":server 353 CBot = #cbot :CBot erin")

	var got []string
	record := func(account string, ok bool) { got = append(got, account) }

	c.LookupAccount("dave", record)
	feed(t, c.onWhoisAccount, ":server 330 CBot dave dave_acct :is logged in as")
	feed(t, c.onWhoisEnd, ":server 318 CBot dave :End of /WHOIS list")
	assert.Equal(t, []string{"dave_acct"}, got)

	id := privmsgIdentity(t, c, ":dave!d@host PRIVMSG CBot :hi")
	assert.False(t, id.AccountKnown)
	c.LookupAccount("dave", record)
	assert.Equal(t, []string{"WHOIS dave", "WHOIS dave"}, s.sent)

	c.LookupAccount("erin", record)
	feed(t, c.onWhoisAccount, ":server 330 CBot erin erin_acct :is logged in as")
	feed(t, c.onWhoisEnd, ":server 318 CBot erin :End of /WHOIS list")
	id = privmsgIdentity(t, c, ":erin!e@host PRIVMSG CBot :hi")
	assert.True(t, id.AccountKnown)
	assert.Equal(t, "erin_acct", id.Account)

	feed(t, c.onPart, ":CBot!bot@host PART #cbot")
	id = privmsgIdentity(t, c, ":erin!e@host PRIVMSG CBot :hi")
	assert.False(t, id.AccountKnown)
	assert.Empty(t, id.Account)
}

func TestMissingAccountTagMeansLoggedOut(t *testing.T) {
	c, _, _ := newTestClient(t, map[string]string{})
	feed(t, c.onJoin, ":CBot!bot@host JOIN #cbot * :CBot")
	feed(t, c.onJoin, ":bob!b@host JOIN #cbot bob_acct :Bob")

	id := privmsgIdentity(t, c, ":bob!b@host PRIVMSG #cbot :hi")
	assert.Equal(t, "bob_acct", id.Account)

	c.irc.(*fakeSession).caps = map[string]string{"account-tag": ""}
	id = privmsgIdentity(t, c, ":bob!b@host PRIVMSG #cbot :hi")
	assert.True(t, id.AccountKnown)
	assert.Empty(t, id.Account)

	id = privmsgIdentity(t, c, "@account=bob_acct :bob!b@host PRIVMSG #cbot :hi")
	assert.Equal(t, "bob_acct", id.Account)
}

func TestRefusedWatchEndsIdentification(t *testing.T) {
	for _, tt := range []struct {
		name     string
		isupport map[string]string
		handler  func(*Client) func(ircmsg.Message)
		line     string
	}{
		{"monitor", map[string]string{"MONITOR": "1"}, func(c *Client) func(ircmsg.Message) { return c.onMonListFull },
			":server 734 CBot 1 alice,bob :Monitor list is full."},
		{"watch", map[string]string{"WATCH": "1"}, func(c *Client) func(ircmsg.Message) { return c.onWatchFull },
			":server 512 CBot alice :Maximum size for WATCH-list is 1 entries"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c, s, core := newTestClient(t, tt.isupport)
			a := &accounts.Account{}
			require.NoError(t, a.SetPassword("pw"))
			core.Accounts.Put("alice", a)

			alice := auth.Identity{Network: "dalnet", Nickname: "alice", Ident: "a", Host: "host"}
			_, err := core.Identify(c, alice, "alice", "pw")
			require.NoError(t, err)
			require.Len(t, s.sent, 1)

			feed(t, tt.handler(c), tt.line)
			_, ok := core.Identifications.Get("dalnet", "alice")
			assert.False(t, ok)
			assert.Empty(t, c.watched)

			c.Unwatch("alice")
			assert.Len(t, s.sent, 1)
		})
	}
}

func TestWatchPrefersMonitor(t *testing.T) {
	c, s, core := newTestClient(t, map[string]string{"MONITOR": "100", "WATCH": "128"})
	a := &accounts.Account{}
	require.NoError(t, a.SetPassword("pw"))
	core.Accounts.Put("alice", a)

	alice := auth.Identity{Network: "dalnet", Nickname: "alice", Ident: "a", Host: "host"}
	id, err := core.Identify(c, alice, "alice", "pw")
	require.NoError(t, err)
	assert.True(t, id.Watched)
	assert.Equal(t, []string{"MONITOR + alice"}, s.sent)

	feed(t, c.onMonOffline, ":server 731 CBot :alice!a@host")
	_, ok := core.Identifications.Get("dalnet", "alice")
	assert.False(t, ok)
	assert.Equal(t, "MONITOR - alice", s.sent[len(s.sent)-1])
}

func TestWatchFallsBackToWatch(t *testing.T) {
	c, s, _ := newTestClient(t, map[string]string{"WATCH": "128"})
	assert.True(t, c.Watch("alice"))
	c.Unwatch("alice")
	c.Unwatch("alice")
	assert.Equal(t, []string{"WATCH +alice", "WATCH -alice"}, s.sent)

	c, _, _ = newTestClient(t, map[string]string{})
	assert.False(t, c.Watch("alice"))
}

func TestQuitEndsIdentification(t *testing.T) {
	c, _, core := newTestClient(t, map[string]string{})
	a := &accounts.Account{Permissions: []string{"*"}}
	require.NoError(t, a.SetPassword("pw"))
	core.Accounts.Put("alice", a)

	feed(t, c.onJoin, ":CBot!bot@host JOIN #cbot")
	feed(t, c.onJoin, ":alice!a@host JOIN #cbot")
	alice := auth.Identity{Network: "dalnet", Nickname: "alice", Ident: "a", Host: "host"}
	_, err := core.Identify(c, alice, "alice", "pw")
	require.NoError(t, err)
	assert.True(t, core.HasPermission(c, alice, "core.version"))

	feed(t, c.onQuit, ":alice!a@host QUIT :bye")
	assert.False(t, core.HasPermission(c, alice, "core.version"))
}

func TestNickUnavailableUsesAlternate(t *testing.T) {
	c, s, _ := newTestClient(t, map[string]string{})
	feed(t, c.onNickUnavailable, ":server 433 * CBot :Nickname is already in use")
	assert.Equal(t, "CBot_", s.nick)

	feed(t, c.onNickUnavailable, ":server 433 * CBot_ :Nickname is already in use")
	assert.Equal(t, "CBot_", s.nick)
}
