package auth

import (
	"strings"

	"github.com/AndrioCelos/CBot-sub003/internal/accounts"
	"github.com/AndrioCelos/CBot-sub003/internal/identify"
	"github.com/AndrioCelos/CBot-sub003/internal/permission"
)

// Match is one account an identity qualifies under.
type Match struct {
	Key     string
	Account *accounts.Account
}

// Resolver maps identities to accounts.
type Resolver struct {
	Accounts        *accounts.Store
	Identifications *identify.Tracker
}

// NewResolver creates a resolver over the given store and tracker.
func NewResolver(store *accounts.Store, tracker *identify.Tracker) *Resolver {
	return &Resolver{Accounts: store, Identifications: tracker}
}

// Matching returns every account the identity qualifies under, in store
// order.
func (r *Resolver) Matching(id Identity, ranks RankSource) []Match {
	if ranks == nil {
		ranks = NoRanks{}
	}
	identified, _ := r.Identifications.Account(id.Network, id.Nickname)

	var matches []Match
	r.Accounts.Each(func(key string, a *accounts.Account) bool {
		if KeyMatches(key, id, identified, ranks) {
			matches = append(matches, Match{Key: key, Account: a})
		}
		return true
	})
	return matches
}

// KeyMatches decides whether one account key applies to the identity.
// identified is the account name the nickname has identified to, or "".
func KeyMatches(key string, id Identity, identified string, ranks RankSource) bool {
	switch {
	case key == "*":
		return true

	case strings.HasPrefix(key, "$a:"):
		if !id.AccountKnown || id.Account == "" {
			return false
		}
		network, name := splitQualified(key[3:])
		if network != "" && !strings.EqualFold(network, id.Network) {
			return false
		}
		return strings.EqualFold(name, id.Account)

	case len(key) > 3 && key[0] == '$' && key[2] == ':':
		required, ok := RankForToken(key[1])
		if !ok {
			return false
		}
		network, channel := splitQualified(key[3:])
		if network != "" && !strings.EqualFold(network, id.Network) {
			return false
		}
		if channel == "" {
			return false
		}
		return ranks.ChannelRank(channel, id.Nickname) >= required

	case strings.Contains(key, "@"):
		return MatchMask(key, id.Hostmask())

	default:
		return identified != "" && strings.EqualFold(key, identified)
	}
}

// NeedsLookup reports whether learning the identity's services account could
// change which accounts it matches.
func (r *Resolver) NeedsLookup(id Identity) bool {
	if id.AccountKnown {
		return false
	}
	needed := false
	r.Accounts.Each(func(key string, _ *accounts.Account) bool {
		if !strings.HasPrefix(key, "$a:") {
			return true
		}
		network, _ := splitQualified(key[3:])
		if network == "" || strings.EqualFold(network, id.Network) {
			needed = true
			return false
		}
		return true
	})
	return needed
}

// HasPermission reports whether the identity holds the permission through
// any account it matches.
func (r *Resolver) HasPermission(id Identity, ranks RankSource, perm string) bool {
	matches := r.Matching(id, ranks)
	ruleSets := make([][]string, 0, len(matches))
	for _, m := range matches {
		ruleSets = append(ruleSets, m.Account.Permissions)
	}
	return permission.Check(perm, ruleSets...)
}
