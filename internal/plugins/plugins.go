// Package plugins holds the builtin plugins and builds them from
// configuration.
package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AndrioCelos/CBot-sub003/internal/command"
	"github.com/AndrioCelos/CBot-sub003/internal/config"
	"github.com/AndrioCelos/CBot-sub003/internal/router"
)

var ErrUnknownType = errors.New("unknown plugin type")

// AuditReader reads back the command audit log.
type AuditReader interface {
	Last(n int) []string
	Search(substr string) []string
}

// Env is what builtin plugins need from the rest of the bot.
type Env struct {
	Core *router.Core
	Log  *slog.Logger

	// Persist saves the account store after a change. Nil means accounts
	// are not persisted.
	Persist func() error
	Audit   AuditReader

	OnShutdown func()
	OnRestart  func()
}

func (e *Env) persist() error {
	if e.Persist == nil {
		return nil
	}
	return e.Persist()
}

// New builds the plugin named by cfg.Type.
func New(cfg config.Plugin, env *Env) (command.Plugin, error) {
	if env.Log == nil {
		env.Log = slog.Default()
	}
	switch strings.ToLower(cfg.Type) {
	case "accounts":
		return NewAccounts(cfg.Key, cfg.Channels, env), nil
	case "core":
		return NewCore(cfg.Key, cfg.Channels, env), nil
	case "autoop":
		return NewAutoOp(cfg.Key, cfg.Channels, env), nil
	case "greeter":
		return NewGreeter(cfg.Key, cfg.Channels), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
}

// routerConn returns the full connection behind a handler context.
func routerConn(ctx *command.Context) (router.Conn, bool) {
	conn, ok := ctx.Conn.(router.Conn)
	return conn, ok
}
