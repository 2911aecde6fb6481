package command

import (
	"strings"

	"github.com/AndrioCelos/CBot-sub003/internal/auth"
)

// Target is where a message was sent.
type Target struct {
	Network string
	// Channel is the channel name, or "" for a private message.
	Channel string
}

// Private reports whether the target is a private conversation.
func (t Target) Private() bool {
	return t.Channel == ""
}

func (t Target) String() string {
	if t.Private() {
		return t.Network + "/pm"
	}
	return t.Network + "/" + t.Channel
}

// Plugin is an active plugin as seen by the router.
type Plugin interface {
	Key() string
	IsActiveTarget(t Target) bool
	Registry() *Registry
}

// JoinEvent describes a user joining a channel the bot is in.
// HasPermission checks a permission for the joining user.
type JoinEvent struct {
	User          auth.Identity
	Target        Target
	Conn          Conn
	HasPermission func(permission string) bool
}

// JoinHandler is implemented by plugins that react to joins.
type JoinHandler interface {
	OnJoin(ev *JoinEvent)
}

// Base implements the scope predicate and registry of a plugin.
//
// Channel patterns: "*" (everywhere), "network/*", "#chan",
// "network/#chan", "pm" and "network/pm" (private messages).
type Base struct {
	PluginKey string
	Channels  []string
	registry  *Registry
}

// NewBase creates a Base with an empty registry.
func NewBase(key string, channels []string) Base {
	return Base{PluginKey: key, Channels: channels, registry: NewRegistry()}
}

func (b *Base) Key() string { return b.PluginKey }

func (b *Base) Registry() *Registry { return b.registry }

// IsActiveTarget reports whether any channel pattern accepts t.
func (b *Base) IsActiveTarget(t Target) bool {
	for _, pattern := range b.Channels {
		if patternMatches(pattern, t) {
			return true
		}
	}
	return false
}

func patternMatches(pattern string, t Target) bool {
	if pattern == "*" {
		return true
	}
	network, name := "", pattern
	if i := strings.IndexByte(pattern, '/'); i >= 0 {
		network, name = pattern[:i], pattern[i+1:]
		if !strings.EqualFold(network, t.Network) {
			return false
		}
	}
	switch {
	case name == "*":
		return true
	case strings.EqualFold(name, "pm"):
		return t.Private()
	default:
		return !t.Private() && strings.EqualFold(name, t.Channel)
	}
}
