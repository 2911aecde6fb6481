package irc

import (
	"strings"

	"github.com/AndrioCelos/CBot-sub003/internal/auth"
)

// prefixModes is the server's PREFIX ISUPPORT token: channel status modes
// and the symbols shown for them in NAMES, highest first.
type prefixModes struct {
	modes   string
	symbols string
}

var defaultPrefix = prefixModes{modes: "ov", symbols: "@+"}

// parsePrefix parses a PREFIX value such as "(qaohv)~&@%+".
func parsePrefix(s string) prefixModes {
	if !strings.HasPrefix(s, "(") {
		return defaultPrefix
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return defaultPrefix
	}
	modes, symbols := s[1:end], s[end+1:]
	if len(modes) != len(symbols) {
		return defaultPrefix
	}
	return prefixModes{modes: modes, symbols: symbols}
}

func (p prefixModes) isStatusMode(m byte) bool {
	return strings.IndexByte(p.modes, m) >= 0
}

// splitNames splits a NAMES entry into its status modes and nickname,
// handling multi-prefix and userhost-in-names.
func (p prefixModes) splitNames(entry string) (modes, nick string) {
	i := 0
	var b strings.Builder
	for i < len(entry) {
		j := strings.IndexByte(p.symbols, entry[i])
		if j < 0 {
			break
		}
		b.WriteByte(p.modes[j])
		i++
	}
	nick = entry[i:]
	if k := strings.IndexByte(nick, '!'); k >= 0 {
		nick = nick[:k]
	}
	return b.String(), nick
}

var modeRanks = map[byte]auth.Rank{
	'q': auth.RankOwner,
	'a': auth.RankAdmin,
	'o': auth.RankOp,
	'h': auth.RankHalfOp,
	'v': auth.RankVoice,
	'V': auth.RankHalfVoice,
}

// rankOf returns the highest rank among a member's status modes.
func rankOf(modes string) auth.Rank {
	rank := auth.RankNone
	for i := 0; i < len(modes); i++ {
		if r := modeRanks[modes[i]]; r > rank {
			rank = r
		}
	}
	return rank
}

type modeChange struct {
	add  bool
	mode byte
	arg  string
}

// parseModes splits a channel MODE line into single changes. chanModes is
// the CHANMODES ISUPPORT value; it decides which modes consume an argument.
func parseModes(modeString string, args []string, p prefixModes, chanModes string) []modeChange {
	groups := strings.SplitN(chanModes, ",", 4)
	for len(groups) < 4 {
		groups = append(groups, "")
	}
	takesArg := func(m byte, add bool) bool {
		switch {
		case p.isStatusMode(m), strings.IndexByte(groups[0], m) >= 0, strings.IndexByte(groups[1], m) >= 0:
			return true
		case strings.IndexByte(groups[2], m) >= 0:
			return add
		}
		return false
	}

	var changes []modeChange
	add := true
	for i := 0; i < len(modeString); i++ {
		m := modeString[i]
		switch m {
		case '+':
			add = true
			continue
		case '-':
			add = false
			continue
		}
		ch := modeChange{add: add, mode: m}
		if takesArg(m, add) && len(args) > 0 {
			ch.arg, args = args[0], args[1:]
		}
		changes = append(changes, ch)
	}
	return changes
}

type channel struct {
	name    string
	members map[string]*member
}

type member struct {
	nick  string
	modes string
}

func newChannel(name string) *channel {
	return &channel{name: name, members: make(map[string]*member)}
}

func (ch *channel) add(nick, modes string) {
	k := strings.ToLower(nick)
	if m, ok := ch.members[k]; ok {
		m.nick = nick
		m.modes = modes
		return
	}
	ch.members[k] = &member{nick: nick, modes: modes}
}

func (ch *channel) remove(nick string) {
	delete(ch.members, strings.ToLower(nick))
}

func (ch *channel) setMode(nick string, mode byte, add bool) {
	m, ok := ch.members[strings.ToLower(nick)]
	if !ok {
		return
	}
	has := strings.IndexByte(m.modes, mode) >= 0
	switch {
	case add && !has:
		m.modes += string(mode)
	case !add && has:
		m.modes = strings.ReplaceAll(m.modes, string(mode), "")
	}
}

func (ch *channel) rename(oldNick, newNick string) {
	k := strings.ToLower(oldNick)
	m, ok := ch.members[k]
	if !ok {
		return
	}
	delete(ch.members, k)
	m.nick = newNick
	ch.members[strings.ToLower(newNick)] = m
}
