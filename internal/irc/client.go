package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"golang.org/x/time/rate"

	"github.com/AndrioCelos/CBot-sub003/internal/auth"
	"github.com/AndrioCelos/CBot-sub003/internal/config"
	"github.com/AndrioCelos/CBot-sub003/internal/router"
)

// Version information (set at build time or here)
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// session is the part of the IRC connection the client sends through.
type session interface {
	Send(command string, params ...string) error
	CurrentNick() string
	SetNick(nick string)
	ISupport() map[string]string
	AcknowledgedCaps() map[string]string
}

// Client is the bot's connection to one network.
type Client struct {
	conn    *ircevent.Connection
	irc     session
	cfg     config.Network
	core    *router.Core
	log     *slog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	channels map[string]*channel
	// Services accounts of nicks the bot can see, learned from extended-join,
	// account-notify and WHOIS, keyed by folded nick. "" means known to be
	// logged out.
	accounts      map[string]string
	trackAccounts bool

	// Pending account lookups: nick -> callbacks waiting on WHOIS
	pendingWhois map[string][]func(account string, ok bool)
	whoisAccount map[string]string

	watched map[string]string
}

// NewClient creates a client for one configured network.
func NewClient(cfg config.Network, core *router.Core, log *slog.Logger) *Client {
	log = log.With("network", cfg.Name)
	conn := &ircevent.Connection{
		Server:       net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port)),
		Nick:         cfg.Nick,
		User:         cfg.Username,
		RealName:     cfg.IRCName,
		Password:     cfg.ServerPass,
		QuitMessage:  "Shutting down",
		UseTLS:       cfg.TLS,
		TLSConfig:    &tls.Config{InsecureSkipVerify: cfg.TLSInsecure},
		UseSASL:      cfg.SASLLogin != "",
		SASLLogin:    cfg.SASLLogin,
		SASLPassword: cfg.SASLPassword,
		RequestCaps:  []string{"account-notify", "extended-join", "account-tag", "multi-prefix", "userhost-in-names"},
		Log:          slog.NewLogLogger(log.Handler(), slog.LevelDebug),
	}

	c := newClient(cfg, core, log, conn)
	c.conn = conn
	c.registerHandlers()
	core.Attach(c)
	return c
}

func newClient(cfg config.Network, core *router.Core, log *slog.Logger, s session) *Client {
	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		irc:          s,
		cfg:          cfg,
		core:         core,
		log:          log,
		limiter:      rate.NewLimiter(limit, max(cfg.SendBurst, 1)),
		ctx:          ctx,
		cancel:       cancel,
		channels:     make(map[string]*channel),
		accounts:     make(map[string]string),
		pendingWhois: make(map[string][]func(string, bool)),
		whoisAccount: make(map[string]string),
		watched:      make(map[string]string),
	}
}

func (c *Client) registerHandlers() {
	c.conn.AddConnectCallback(c.onConnect)
	c.conn.AddDisconnectCallback(c.onDisconnect)

	c.conn.AddCallback("PRIVMSG", c.onPrivMsg)

	// Channel membership
	c.conn.AddCallback("JOIN", c.onJoin)
	c.conn.AddCallback("PART", c.onPart)
	c.conn.AddCallback("KICK", c.onKick)
	c.conn.AddCallback("QUIT", c.onQuit)
	c.conn.AddCallback("NICK", c.onNick)
	c.conn.AddCallback("MODE", c.onMode)
	c.conn.AddCallback("353", c.onNames) // RPL_NAMREPLY

	// Services accounts
	c.conn.AddCallback("ACCOUNT", c.onAccount)
	c.conn.AddCallback("330", c.onWhoisAccount) // RPL_WHOISACCOUNT
	c.conn.AddCallback("318", c.onWhoisEnd)     // RPL_ENDOFWHOIS

	// Nick issues
	c.conn.AddCallback("432", c.onNickUnavailable) // ERR_ERRONEUSNICKNAME
	c.conn.AddCallback("433", c.onNickUnavailable) // ERR_NICKNAMEINUSE

	// Presence notifications
	c.conn.AddCallback("601", c.onLogoff) // RPL_LOGOFF
	c.conn.AddCallback("605", c.onLogoff) // RPL_NOWOFF
	c.conn.AddCallback("731", c.onMonOffline)
	c.conn.AddCallback("734", c.onMonListFull) // ERR_MONLISTFULL
	c.conn.AddCallback("512", c.onWatchFull)   // ERR_TOOMANYWATCH

	c.conn.AddCallback("CTCP_VERSION", c.onCtcpVersion)
}

// Connect initiates the IRC connection
func (c *Client) Connect() error {
	return c.conn.Connect()
}

// Loop runs the IRC event loop (blocking)
func (c *Client) Loop() {
	c.conn.Loop()
}

// Quit disconnects from IRC
func (c *Client) Quit(message string) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.conn.QuitMessage = message
	c.conn.Quit()
	c.cancel()
}

// Network returns the configured network name.
func (c *Client) Network() string { return c.cfg.Name }

// CurrentNick returns the bot's nickname on this network.
func (c *Client) CurrentNick() string { return c.irc.CurrentNick() }

// SetNick changes the bot's nickname.
func (c *Client) SetNick(nick string) { c.irc.SetNick(nick) }

// Privmsg sends a message, subject to flood control.
func (c *Client) Privmsg(target, text string) error {
	return c.send("PRIVMSG", target, text)
}

// Notice sends a notice, subject to flood control.
func (c *Client) Notice(target, text string) error {
	return c.send("NOTICE", target, text)
}

// Mode sets channel modes.
func (c *Client) Mode(channel, modes string, args ...string) error {
	return c.send("MODE", append([]string{channel, modes}, args...)...)
}

func (c *Client) send(command string, params ...string) error {
	if err := c.limiter.Wait(c.ctx); err != nil {
		return err
	}
	return c.irc.Send(command, params...)
}

// IsChannel reports whether name is a channel according to CHANTYPES.
func (c *Client) IsChannel(name string) bool {
	if name == "" {
		return false
	}
	types, ok := c.irc.ISupport()["CHANTYPES"]
	if !ok {
		types = "#&"
	}
	return strings.IndexByte(types, name[0]) >= 0
}

func (c *Client) statusModes() prefixModes {
	if v, ok := c.irc.ISupport()["PREFIX"]; ok {
		return parsePrefix(v)
	}
	return defaultPrefix
}

func (c *Client) isSelf(nick string) bool {
	return strings.EqualFold(nick, c.irc.CurrentNick())
}

// ChannelRank returns nick's status in channel.
func (c *Client) ChannelRank(channel, nick string) auth.Rank {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[strings.ToLower(channel)]
	if !ok {
		return auth.RankNone
	}
	m, ok := ch.members[strings.ToLower(nick)]
	if !ok {
		return auth.RankNone
	}
	return rankOf(m.modes)
}

// SharedChannels lists the channels where both nick and the bot are present.
func (c *Client) SharedChannels(nick string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k := strings.ToLower(nick)
	var shared []string
	for _, ch := range c.channels {
		if _, ok := ch.members[k]; ok {
			shared = append(shared, ch.name)
		}
	}
	return shared
}

// Watch subscribes to logoff notifications for nick using MONITOR or WATCH.
func (c *Client) Watch(nick string) bool {
	isupport := c.irc.ISupport()
	var err error
	if _, ok := isupport["MONITOR"]; ok {
		err = c.send("MONITOR", "+", nick)
	} else if _, ok := isupport["WATCH"]; ok {
		err = c.send("WATCH", "+"+nick)
	} else {
		return false
	}
	if err != nil {
		c.log.Warn("could not watch nick", "nick", nick, "error", err)
		return false
	}

	c.mu.Lock()
	c.watched[strings.ToLower(nick)] = nick
	c.mu.Unlock()
	return true
}

// Unwatch ends a subscription made by Watch.
func (c *Client) Unwatch(nick string) {
	k := strings.ToLower(nick)
	c.mu.Lock()
	_, ok := c.watched[k]
	delete(c.watched, k)
	c.forgetIfGone(nick)
	c.mu.Unlock()
	if !ok {
		return
	}

	if _, monitor := c.irc.ISupport()["MONITOR"]; monitor {
		c.send("MONITOR", "-", nick)
	} else {
		c.send("WATCH", "-"+nick)
	}
}

// LookupAccount resolves nick's services account. Known accounts answer
// immediately; otherwise a WHOIS is sent and done runs on its reply.
func (c *Client) LookupAccount(nick string, done func(account string, ok bool)) {
	k := strings.ToLower(nick)
	c.mu.Lock()
	if account, ok := c.accounts[k]; ok {
		c.mu.Unlock()
		done(account, true)
		return
	}
	first := len(c.pendingWhois[k]) == 0
	c.pendingWhois[k] = append(c.pendingWhois[k], done)
	c.mu.Unlock()

	if first {
		if err := c.send("WHOIS", nick); err != nil {
			c.log.Warn("could not send WHOIS", "nick", nick, "error", err)
		}
	}
}

func (c *Client) onConnect(e ircmsg.Message) {
	c.log.Info("connected to IRC server", "nick", c.irc.CurrentNick())

	// Identify to NickServ
	if c.cfg.NickPass != "" && c.cfg.SASLLogin == "" {
		c.Privmsg("NickServ", fmt.Sprintf("IDENTIFY %s %s", c.cfg.Nick, c.cfg.NickPass))
	}

	for _, ch := range c.cfg.Channels {
		c.send("JOIN", ch)
	}
}

// onDisconnect drops all network state. Pending account lookups are
// invalidated so the commands waiting on them are discarded.
func (c *Client) onDisconnect(e ircmsg.Message) {
	c.mu.Lock()
	closed := c.closed
	pending := c.pendingWhois
	c.channels = make(map[string]*channel)
	c.accounts = make(map[string]string)
	c.pendingWhois = make(map[string][]func(string, bool))
	c.whoisAccount = make(map[string]string)
	c.watched = make(map[string]string)
	c.mu.Unlock()

	if closed {
		c.log.Info("disconnected")
	} else {
		c.log.Warn("connection lost")
	}
	for _, callbacks := range pending {
		for _, done := range callbacks {
			done("", false)
		}
	}
	c.core.HandleDisconnect(c)
}

// identity builds the sender identity of a message, taking the services
// account from the account tag or from what the client already knows. Once
// account-tag is acknowledged a message without the tag comes from a user
// who is not logged in.
func (c *Client) identity(e ircmsg.Message) (auth.Identity, bool) {
	nuh, err := e.NUH()
	if err != nil {
		return auth.Identity{}, false
	}
	id := auth.Identity{Network: c.cfg.Name, Nickname: nuh.Name, Ident: nuh.User, Host: nuh.Host}
	if present, account := e.GetTag("account"); present {
		id.Account, id.AccountKnown = account, true
		return id, true
	}
	if _, ok := c.irc.AcknowledgedCaps()["account-tag"]; ok {
		id.AccountKnown = true
		return id, true
	}
	c.mu.RLock()
	account, ok := c.accounts[strings.ToLower(nuh.Name)]
	c.mu.RUnlock()
	if ok {
		id.Account, id.AccountKnown = account, true
	}
	return id, true
}

func (c *Client) onPrivMsg(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	text := e.Params[1]
	if strings.HasPrefix(text, "\x01") {
		return
	}
	sender, ok := c.identity(e)
	if !ok {
		return
	}
	c.core.HandleMessage(c, router.Message{Sender: sender, Target: e.Params[0], Text: text})
}

func (c *Client) onJoin(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	name := e.Params[0]
	user, ok := c.identity(e)
	if !ok {
		return
	}

	c.mu.Lock()
	if len(e.Params) >= 2 {
		// extended-join: JOIN <channel> <account> :<realname>
		c.trackAccounts = true
		account := e.Params[1]
		if account == "*" {
			account = ""
		}
		c.accounts[strings.ToLower(user.Nickname)] = account
		user.Account, user.AccountKnown = account, true
	}
	if c.isSelf(user.Nickname) {
		c.channels[strings.ToLower(name)] = newChannel(name)
		c.mu.Unlock()
		c.log.Info("joined channel", "channel", name)
		return
	}
	if ch, ok := c.channels[strings.ToLower(name)]; ok {
		ch.add(user.Nickname, "")
	}
	c.mu.Unlock()

	c.core.HandleJoin(c, user, name)
}

func (c *Client) onPart(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	c.left(e.Nick(), e.Params[0])
}

func (c *Client) onKick(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	c.left(e.Params[1], e.Params[0])
}

func (c *Client) left(nick, name string) {
	if c.isSelf(nick) {
		c.mu.Lock()
		if ch, ok := c.channels[strings.ToLower(name)]; ok {
			delete(c.channels, strings.ToLower(name))
			for _, m := range ch.members {
				c.forgetIfGone(m.nick)
			}
		}
		c.mu.Unlock()
		c.log.Info("left channel", "channel", name)
		c.core.HandleSelfPart(c, name)
		return
	}

	c.mu.Lock()
	if ch, ok := c.channels[strings.ToLower(name)]; ok {
		ch.remove(nick)
	}
	c.forgetIfGone(nick)
	c.mu.Unlock()
	c.core.HandlePart(c, nick, name)
}

// forgetIfGone drops the cached account of a nick the bot can no longer see.
// c.mu must be held.
func (c *Client) forgetIfGone(nick string) {
	k := strings.ToLower(nick)
	if !c.visible(k) {
		delete(c.accounts, k)
	}
}

// visible reports whether the folded nick k shares a channel with the bot or
// is watched. c.mu must be held.
func (c *Client) visible(k string) bool {
	if _, ok := c.watched[k]; ok {
		return true
	}
	for _, ch := range c.channels {
		if _, ok := ch.members[k]; ok {
			return true
		}
	}
	return false
}

func (c *Client) onQuit(e ircmsg.Message) {
	nick := e.Nick()
	k := strings.ToLower(nick)
	c.mu.Lock()
	for _, ch := range c.channels {
		ch.remove(nick)
	}
	delete(c.accounts, k)
	c.mu.Unlock()
	c.core.HandleQuit(c, nick)
}

func (c *Client) onNick(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	oldNick, newNick := e.Nick(), e.Params[0]
	oldKey, newKey := strings.ToLower(oldNick), strings.ToLower(newNick)

	c.mu.Lock()
	for _, ch := range c.channels {
		ch.rename(oldNick, newNick)
	}
	if account, ok := c.accounts[oldKey]; ok {
		delete(c.accounts, oldKey)
		c.accounts[newKey] = account
	}
	c.mu.Unlock()

	// The watch follows the nickname, not the user.
	c.Unwatch(oldNick)
	c.core.HandleNick(c, oldNick, newNick)
	if id, ok := c.core.Identifications.Get(c.cfg.Name, newNick); ok && id.Watched {
		if !c.Watch(newNick) {
			c.core.Identifications.SetWatched(c.cfg.Name, newNick, false)
		}
	}
}

func (c *Client) onMode(e ircmsg.Message) {
	if len(e.Params) < 2 || !c.IsChannel(e.Params[0]) {
		return
	}
	p := c.statusModes()
	changes := parseModes(e.Params[1], e.Params[2:], p, c.irc.ISupport()["CHANMODES"])

	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[strings.ToLower(e.Params[0])]
	if !ok {
		return
	}
	for _, m := range changes {
		if p.isStatusMode(m.mode) && m.arg != "" {
			ch.setMode(m.arg, m.mode, m.add)
		}
	}
}

func (c *Client) onNames(e ircmsg.Message) {
	// 353 <me> <symbol> <channel> :<names>
	if len(e.Params) < 4 {
		return
	}
	p := c.statusModes()

	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[strings.ToLower(e.Params[2])]
	if !ok {
		return
	}
	for _, entry := range strings.Fields(e.Params[3]) {
		modes, nick := p.splitNames(entry)
		if nick != "" {
			ch.add(nick, modes)
		}
	}
}

func (c *Client) onAccount(e ircmsg.Message) {
	// ACCOUNT <account>, or * for logout
	if len(e.Params) < 1 {
		return
	}
	account := e.Params[0]
	if account == "*" {
		account = ""
	}
	c.mu.Lock()
	c.trackAccounts = true
	c.accounts[strings.ToLower(e.Nick())] = account
	c.mu.Unlock()
}

func (c *Client) onWhoisAccount(e ircmsg.Message) {
	// 330 <me> <nick> <account> :is logged in as
	if len(e.Params) < 3 {
		return
	}
	c.mu.Lock()
	c.whoisAccount[strings.ToLower(e.Params[1])] = e.Params[2]
	c.mu.Unlock()
}

func (c *Client) onWhoisEnd(e ircmsg.Message) {
	// 318 <me> <nick> :End of /WHOIS list
	if len(e.Params) < 2 {
		return
	}
	k := strings.ToLower(e.Params[1])

	c.mu.Lock()
	pending := c.pendingWhois[k]
	delete(c.pendingWhois, k)
	account := c.whoisAccount[k]
	delete(c.whoisAccount, k)
	// Only nicks the bot can see get account-notify updates.
	if c.trackAccounts && c.visible(k) {
		c.accounts[k] = account
	}
	c.mu.Unlock()

	for _, done := range pending {
		done(account, true)
	}
}

func (c *Client) onNickUnavailable(e ircmsg.Message) {
	if c.irc.CurrentNick() == c.cfg.Alternate {
		return
	}
	c.log.Warn("nick unavailable, switching to alternate", "alternate", c.cfg.Alternate, "code", e.Command)
	c.irc.SetNick(c.cfg.Alternate)
	if c.cfg.NickPass == "" {
		return
	}

	// Schedule nick recovery
	verb := "GHOST"
	if e.Command == "432" {
		verb = "RELEASE"
	}
	time.AfterFunc(15*time.Second, func() {
		c.Privmsg("NickServ", fmt.Sprintf("%s %s %s", verb, c.cfg.Nick, c.cfg.NickPass))
		time.AfterFunc(2*time.Second, func() {
			c.irc.SetNick(c.cfg.Nick)
		})
	})
}

func (c *Client) onLogoff(e ircmsg.Message) {
	// 601 <me> <nick> <user> <host> <timestamp> :logged out
	if len(e.Params) < 2 {
		return
	}
	c.loggedOff(e.Params[1])
}

func (c *Client) onMonOffline(e ircmsg.Message) {
	// 731 <me> :target[,target2]*
	if len(e.Params) < 2 {
		return
	}
	for _, target := range strings.Split(e.Params[1], ",") {
		if i := strings.IndexByte(target, '!'); i >= 0 {
			target = target[:i]
		}
		if target != "" {
			c.loggedOff(target)
		}
	}
}

func (c *Client) onMonListFull(e ircmsg.Message) {
	// 734 <me> <limit> <targets> :Monitor list is full.
	if len(e.Params) < 3 {
		return
	}
	for _, target := range strings.Split(e.Params[2], ",") {
		if target != "" {
			c.watchRejected(target)
		}
	}
}

func (c *Client) onWatchFull(e ircmsg.Message) {
	// 512 <me> <nick> :Maximum size for WATCH-list is <n> entries
	if len(e.Params) < 2 {
		return
	}
	c.watchRejected(e.Params[1])
}

// watchRejected forgets a subscription the server refused.
func (c *Client) watchRejected(nick string) {
	k := strings.ToLower(nick)
	c.mu.Lock()
	_, ok := c.watched[k]
	delete(c.watched, k)
	c.forgetIfGone(nick)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.log.Warn("server refused to watch nick", "nick", nick)
	c.core.HandleWatchRejected(c, nick)
}

func (c *Client) loggedOff(nick string) {
	c.mu.Lock()
	delete(c.accounts, strings.ToLower(nick))
	c.mu.Unlock()
	c.core.HandleLogoff(c, nick)
}

func (c *Client) onCtcpVersion(e ircmsg.Message) {
	reply := fmt.Sprintf("CBot %s (built %s, commit %s)", Version, BuildDate, GitCommit)
	c.Notice(e.Nick(), fmt.Sprintf("\x01VERSION %s\x01", reply))
}
