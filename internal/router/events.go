package router

import (
	"github.com/AndrioCelos/CBot-sub003/internal/auth"
	"github.com/AndrioCelos/CBot-sub003/internal/command"
	"github.com/AndrioCelos/CBot-sub003/internal/identify"
)

// HandleJoin records that user joined channel and offers the join to every
// plugin active there that implements command.JoinHandler.
func (c *Core) HandleJoin(conn Conn, user auth.Identity, channel string) {
	c.Identifications.Join(conn.Network(), user.Nickname, channel)

	target := command.Target{Network: conn.Network(), Channel: channel}
	var handlers []command.JoinHandler
	for _, p := range c.Plugins() {
		if h, ok := p.(command.JoinHandler); ok && p.IsActiveTarget(target) {
			handlers = append(handlers, h)
		}
	}
	if len(handlers) == 0 {
		return
	}

	dispatch := func(user auth.Identity) {
		ev := &command.JoinEvent{
			User:   user,
			Target: target,
			Conn:   conn,
			HasPermission: func(perm string) bool {
				return c.Resolver.HasPermission(user, conn, perm)
			},
		}
		for _, h := range handlers {
			c.safeJoin(h, ev)
		}
	}

	if !c.Resolver.NeedsLookup(user) {
		dispatch(user)
		return
	}
	conn.LookupAccount(user.Nickname, func(account string, ok bool) {
		if !ok {
			return
		}
		user.Account, user.AccountKnown = account, true
		dispatch(user)
	})
}

func (c *Core) safeJoin(h command.JoinHandler, ev *command.JoinEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("join handler fault", "network", ev.Target.Network, "channel", ev.Target.Channel, "nick", ev.User.Nickname, "error", r)
		}
	}()
	h.OnJoin(ev)
}

// HandlePart records that nick left channel or was kicked from it.
func (c *Core) HandlePart(conn Conn, nick, channel string) {
	if id, ok := c.Identifications.Part(conn.Network(), nick, channel); ok {
		c.log.Info("identification ended: no shared channels", "network", id.Network, "nick", id.Nickname, "account", id.Account)
	}
}

// HandleSelfPart records that the bot left channel.
func (c *Core) HandleSelfPart(conn Conn, channel string) {
	c.release(c.Identifications.ChannelGone(conn.Network(), channel))
}

// HandleQuit records that nick left the network.
func (c *Core) HandleQuit(conn Conn, nick string) {
	if id, ok := c.Identifications.Quit(conn.Network(), nick); ok {
		c.release([]*identify.Identification{id})
	}
}

// HandleNick carries an identification over a nickname change.
func (c *Core) HandleNick(conn Conn, oldNick, newNick string) {
	id, ok := c.Identifications.Rename(conn.Network(), oldNick, newNick)
	if !ok {
		return
	}
	c.log.Info("identification ended: nickname collision", "network", id.Network, "nick", id.Nickname, "new_nick", newNick, "account", id.Account)
	if id.Watched {
		conn.Unwatch(id.Nickname)
	}
}

// HandleLogoff handles a presence notification saying nick went offline.
func (c *Core) HandleLogoff(conn Conn, nick string) {
	if id, ok := c.Identifications.Quit(conn.Network(), nick); ok {
		c.log.Info("identification ended: user went offline", "network", id.Network, "nick", id.Nickname, "account", id.Account)
		conn.Unwatch(nick)
	}
}

// HandleWatchRejected handles the server refusing a presence subscription
// for nick. An identification that relied on it ends.
func (c *Core) HandleWatchRejected(conn Conn, nick string) {
	if id, ok := c.Identifications.SetWatched(conn.Network(), nick, false); ok {
		c.log.Info("identification ended: presence subscription refused", "network", id.Network, "nick", id.Nickname, "account", id.Account)
	}
}

// HandleDisconnect ends every identification on conn's network.
func (c *Core) HandleDisconnect(conn Conn) {
	for _, id := range c.Identifications.Disconnect(conn.Network()) {
		c.log.Info("identification ended: disconnected", "network", id.Network, "nick", id.Nickname, "account", id.Account)
	}
}
