// Package auth resolves a chat identity to the accounts it qualifies under
// and answers permission questions for it.
package auth

import "strings"

// Identity is what the protocol knows about a message sender.
type Identity struct {
	Network  string
	Nickname string
	Ident    string
	Host     string

	// Account is the services account the user is logged in to. It is only
	// meaningful when AccountKnown is set; an empty Account with
	// AccountKnown set means the user is known to be logged out.
	Account      string
	AccountKnown bool
}

// Hostmask returns nick!user@host.
func (id Identity) Hostmask() string {
	return id.Nickname + "!" + id.Ident + "@" + id.Host
}

// Rank is a user's status in a channel.
type Rank int

const (
	RankNone Rank = iota
	RankHalfVoice
	RankVoice
	RankHalfOp
	RankOp
	RankAdmin
	RankOwner
)

var rankTokens = map[byte]Rank{
	'q': RankOwner,
	's': RankAdmin,
	'o': RankOp,
	'h': RankHalfOp,
	'v': RankVoice,
	'V': RankHalfVoice,
}

// RankForToken returns the rank named by a channel-rank token letter
// ($q, $s, $o, $h, $v, $V).
func RankForToken(letter byte) (Rank, bool) {
	r, ok := rankTokens[letter]
	return r, ok
}

func (r Rank) String() string {
	switch r {
	case RankOwner:
		return "owner"
	case RankAdmin:
		return "admin"
	case RankOp:
		return "op"
	case RankHalfOp:
		return "halfop"
	case RankVoice:
		return "voice"
	case RankHalfVoice:
		return "halfvoice"
	default:
		return "none"
	}
}

// RankSource reports channel ranks on one network.
type RankSource interface {
	ChannelRank(channel, nick string) Rank
}

// NoRanks is a RankSource that knows no channels.
type NoRanks struct{}

func (NoRanks) ChannelRank(string, string) Rank { return RankNone }

// splitQualified splits "[network/]name" into its parts.
func splitQualified(s string) (network, name string) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}
