package plugins

import (
	"strings"

	"github.com/AndrioCelos/CBot-sub003/internal/command"
)

// AutoOp sets channel status on users as they join.
//
// A user joining #channel on network gets +o with the permission
// irc.autoop.<network>.<channel>, +h with irc.autohalfop and +v with
// irc.autovoice. Only the highest applies.
type AutoOp struct {
	command.Base
	env *Env
}

type moder interface {
	Mode(channel, modes string, args ...string) error
}

var autoModes = []struct {
	name string
	mode string
}{
	{"autoop", "+o"},
	{"autohalfop", "+h"},
	{"autovoice", "+v"},
}

// NewAutoOp creates the autoop plugin.
func NewAutoOp(key string, channels []string, env *Env) *AutoOp {
	return &AutoOp{Base: command.NewBase(key, channels), env: env}
}

// OnJoin grants the status the joining user is entitled to.
func (p *AutoOp) OnJoin(ev *command.JoinEvent) {
	conn, ok := ev.Conn.(moder)
	if !ok {
		return
	}
	suffix := "." + strings.ToLower(ev.Target.Network) + "." + strings.ToLower(ev.Target.Channel)
	for _, m := range autoModes {
		if !ev.HasPermission("irc." + m.name + suffix) {
			continue
		}
		if err := conn.Mode(ev.Target.Channel, m.mode, ev.User.Nickname); err != nil {
			p.env.Log.Warn("could not set mode", "network", ev.Target.Network, "channel", ev.Target.Channel, "mode", m.mode, "nick", ev.User.Nickname, "error", err)
		}
		return
	}
}
