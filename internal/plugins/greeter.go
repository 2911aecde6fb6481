package plugins

import (
	"regexp"

	"github.com/AndrioCelos/CBot-sub003/internal/command"
)

// Greeter answers greetings addressed to the bot.
type Greeter struct {
	command.Base
}

// NewGreeter creates the greeter plugin.
func NewGreeter(key string, channels []string) *Greeter {
	p := &Greeter{Base: command.NewBase(key, channels)}
	p.Registry().AddTrigger(&command.Trigger{
		Name: "greeting",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(hi|hello|hey|howdy)\b`),
			regexp.MustCompile(`(?i)^good (morning|afternoon|evening)\b`),
		},
		MustAddress: true,
		Handler: func(ctx *command.Context) error {
			ctx.Replyf("Hello, %s.", ctx.Sender.Nickname)
			return nil
		},
	})
	return p
}
