// Package router wires message parsing, plugin arbitration and
// authorization together for every inbound chat message.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AndrioCelos/CBot-sub003/internal/accounts"
	"github.com/AndrioCelos/CBot-sub003/internal/auth"
	"github.com/AndrioCelos/CBot-sub003/internal/command"
	"github.com/AndrioCelos/CBot-sub003/internal/identify"
)

var (
	ErrNoSuchAccount     = errors.New("no such account")
	ErrAlreadyIdentified = errors.New("already identified")
	ErrBadCredentials    = errors.New("invalid password")
	ErrNotVisible        = errors.New("no shared channel and no presence notification available")
	ErrLookupInvalidated = errors.New("account lookup invalidated")
	ErrDuplicatePlugin   = errors.New("a plugin with that key is already active")
)

// DefaultPrefixes is used when no prefix source is configured.
var DefaultPrefixes = []string{"!"}

// Conn is a protocol connection as the router needs it. Events from one
// Conn are delivered serially; different Conns may call in concurrently.
type Conn interface {
	command.Conn
	auth.RankSource

	IsChannel(name string) bool
	// SharedChannels lists the channels nick shares with the bot.
	SharedChannels(nick string) []string
	// Watch subscribes to presence notifications for nick. It reports false
	// when the server offers none.
	Watch(nick string) bool
	Unwatch(nick string)
	// LookupAccount resolves nick's services account asynchronously. done
	// runs on the connection's event goroutine; ok is false when the
	// lookup was invalidated by a disconnect.
	LookupAccount(nick string, done func(account string, ok bool))
}

// Message is an inbound chat message.
type Message struct {
	Sender auth.Identity
	// Target is the channel or the bot's own nickname.
	Target string
	Text   string
}

// Auditor records command use.
type Auditor interface {
	Record(hostmask, entry string)
}

// Options configures a Core.
type Options struct {
	Logger *slog.Logger
	// Prefixes returns the command prefixes for a channel ("" for private
	// messages) on a network.
	Prefixes func(network, channel string) []string
	Auditor  Auditor
}

// Core is the routing core: accounts, identifications and active plugins,
// and the logic that routes messages between them.
type Core struct {
	Accounts        *accounts.Store
	Identifications *identify.Tracker
	Resolver        *auth.Resolver

	log      *slog.Logger
	prefixes func(network, channel string) []string
	audit    Auditor

	pluginsMu sync.RWMutex
	plugins   []command.Plugin

	connsMu sync.RWMutex
	conns   map[string]Conn
}

// New creates a routing core over an account store.
func New(store *accounts.Store, opts Options) *Core {
	tracker := identify.NewTracker()
	c := &Core{
		Accounts:        store,
		Identifications: tracker,
		Resolver:        auth.NewResolver(store, tracker),
		log:             opts.Logger,
		prefixes:        opts.Prefixes,
		audit:           opts.Auditor,
		conns:           make(map[string]Conn),
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// AddPlugin activates a plugin. Plugins are consulted in activation order.
func (c *Core) AddPlugin(p command.Plugin) error {
	c.pluginsMu.Lock()
	defer c.pluginsMu.Unlock()
	for _, existing := range c.plugins {
		if strings.EqualFold(existing.Key(), p.Key()) {
			return fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Key())
		}
	}
	c.plugins = append(c.plugins, p)
	return nil
}

// RemovePlugin deactivates the plugin with the given key.
func (c *Core) RemovePlugin(key string) bool {
	c.pluginsMu.Lock()
	defer c.pluginsMu.Unlock()
	for i, p := range c.plugins {
		if strings.EqualFold(p.Key(), key) {
			c.plugins = append(c.plugins[:i:i], c.plugins[i+1:]...)
			return true
		}
	}
	return false
}

// Plugins returns the active plugins in activation order.
func (c *Core) Plugins() []command.Plugin {
	c.pluginsMu.RLock()
	defer c.pluginsMu.RUnlock()
	return append([]command.Plugin(nil), c.plugins...)
}

// Plugin returns the active plugin with the given key.
func (c *Core) Plugin(key string) (command.Plugin, bool) {
	c.pluginsMu.RLock()
	defer c.pluginsMu.RUnlock()
	for _, p := range c.plugins {
		if strings.EqualFold(p.Key(), key) {
			return p, true
		}
	}
	return nil, false
}

// Attach registers a connection so that identifications on its network can
// release their presence subscriptions.
func (c *Core) Attach(conn Conn) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	c.conns[strings.ToLower(conn.Network())] = conn
}

func (c *Core) conn(network string) (Conn, bool) {
	c.connsMu.RLock()
	defer c.connsMu.RUnlock()
	conn, ok := c.conns[strings.ToLower(network)]
	return conn, ok
}

// PrefixesFor returns the command prefixes in effect for a target.
func (c *Core) PrefixesFor(t command.Target) []string {
	if c.prefixes != nil {
		if p := c.prefixes(t.Network, t.Channel); len(p) > 0 {
			return p
		}
	}
	return DefaultPrefixes
}

// HasPermission reports whether the identity holds permission on conn's
// network.
func (c *Core) HasPermission(conn Conn, id auth.Identity, perm string) bool {
	return c.Resolver.HasPermission(id, conn, perm)
}

// Identify authenticates sender to an account with a password.
//
// A nickname already identified to the same account gets that
// identification back with ErrAlreadyIdentified. A nickname identified to a
// different account is moved to the new one.
func (c *Core) Identify(conn Conn, sender auth.Identity, name, password string) (*identify.Identification, error) {
	if !IsAccountName(name) {
		return nil, ErrNoSuchAccount
	}
	a, ok := c.Accounts.Get(name)
	if !ok {
		return nil, ErrNoSuchAccount
	}
	if existing, ok := c.Identifications.Get(sender.Network, sender.Nickname); ok && strings.EqualFold(existing.Account, name) {
		return existing, ErrAlreadyIdentified
	}
	if !a.VerifyPassword(password) {
		return nil, ErrBadCredentials
	}

	channels := conn.SharedChannels(sender.Nickname)
	watched := false
	if len(channels) == 0 {
		if !conn.Watch(sender.Nickname) {
			return nil, ErrNotVisible
		}
		watched = true
	}

	if old, ok := c.Identifications.Remove(sender.Network, sender.Nickname); ok {
		c.log.Info("identification replaced", "network", sender.Network, "nick", sender.Nickname, "old_account", old.Account, "account", name)
		if old.Watched && !watched {
			conn.Unwatch(sender.Nickname)
		}
	}
	id, _ := c.Identifications.Add(sender.Network, sender.Nickname, name, channels, watched)
	c.log.Info("identified", "network", sender.Network, "nick", sender.Nickname, "account", name, "watched", watched)
	return id, nil
}

// Logout ends sender's identification.
func (c *Core) Logout(conn Conn, sender auth.Identity) (*identify.Identification, bool) {
	id, ok := c.Identifications.Remove(sender.Network, sender.Nickname)
	if !ok {
		return nil, false
	}
	if id.Watched {
		conn.Unwatch(id.Nickname)
	}
	c.log.Info("logged out", "network", sender.Network, "nick", sender.Nickname, "account", id.Account)
	return id, true
}

// DeleteAccount removes an account and ends every identification bound to it.
func (c *Core) DeleteAccount(name string) bool {
	if !c.Accounts.Delete(name) {
		return false
	}
	c.release(c.Identifications.RemoveAccount(name))
	return true
}

// IsAccountName reports whether key names an account one can identify to,
// as opposed to a pattern key.
func IsAccountName(key string) bool {
	return key != "" && key != "*" && !strings.HasPrefix(key, "$") && !strings.Contains(key, "@")
}

func (c *Core) release(ids []*identify.Identification) {
	for _, id := range ids {
		c.log.Info("identification ended", "network", id.Network, "nick", id.Nickname, "account", id.Account)
		if !id.Watched {
			continue
		}
		if conn, ok := c.conn(id.Network); ok {
			conn.Unwatch(id.Nickname)
		}
	}
}
