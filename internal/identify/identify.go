// Package identify tracks which nicknames are currently authenticated to
// which accounts.
//
// An identification lives while its nickname shares at least one channel
// with the bot or is watched through a presence subscription. Nick changes
// carry it over; quits, logouts and account deletion end it.
package identify

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Identification is an authenticated session of one nickname on one network.
type Identification struct {
	Network  string
	Nickname string
	Account  string
	Time     time.Time
	Channels map[string]struct{}
	Watched  bool
}

// ChannelList returns the shared channels sorted by name.
func (id *Identification) ChannelList() []string {
	list := make([]string, 0, len(id.Channels))
	for ch := range id.Channels {
		list = append(list, ch)
	}
	sort.Strings(list)
	return list
}

func (id *Identification) clone() *Identification {
	c := *id
	c.Channels = make(map[string]struct{}, len(id.Channels))
	for ch := range id.Channels {
		c.Channels[ch] = struct{}{}
	}
	return &c
}

type key struct {
	network string
	nick    string
}

func keyOf(network, nick string) key {
	return key{strings.ToLower(network), strings.ToLower(nick)}
}

// Tracker holds the live identifications of every network.
type Tracker struct {
	mu  sync.Mutex
	ids map[key]*Identification
	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[key]*Identification), now: time.Now}
}

// Add records a new identification. If the nickname already holds one, the
// existing record is returned with added set to false.
func (t *Tracker) Add(network, nick, account string, channels []string, watched bool) (id *Identification, added bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := keyOf(network, nick)
	if existing, ok := t.ids[k]; ok {
		return existing.clone(), false
	}

	id = &Identification{
		Network:  network,
		Nickname: nick,
		Account:  account,
		Time:     t.now(),
		Channels: make(map[string]struct{}, len(channels)),
		Watched:  watched,
	}
	for _, ch := range channels {
		id.Channels[strings.ToLower(ch)] = struct{}{}
	}
	t.ids[k] = id
	return id.clone(), true
}

// Get returns the identification held by nick on network.
func (t *Tracker) Get(network, nick string) (*Identification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[keyOf(network, nick)]
	if !ok {
		return nil, false
	}
	return id.clone(), true
}

// Remove ends the identification held by nick on network.
func (t *Tracker) Remove(network, nick string) (*Identification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyOf(network, nick)
	id, ok := t.ids[k]
	if !ok {
		return nil, false
	}
	delete(t.ids, k)
	return id, true
}

// Join records that nick now shares channel with the bot.
func (t *Tracker) Join(network, nick, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[keyOf(network, nick)]; ok {
		id.Channels[strings.ToLower(channel)] = struct{}{}
	}
}

// Part records that nick no longer shares channel with the bot. The
// identification is returned if this ended it.
func (t *Tracker) Part(network, nick, channel string) (*Identification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyOf(network, nick)
	id, ok := t.ids[k]
	if !ok {
		return nil, false
	}
	delete(id.Channels, strings.ToLower(channel))
	if len(id.Channels) == 0 && !id.Watched {
		delete(t.ids, k)
		return id, true
	}
	return nil, false
}

// Quit ends the identification of a nickname that left the network.
func (t *Tracker) Quit(network, nick string) (*Identification, bool) {
	return t.Remove(network, nick)
}

// Rename moves an identification to a new nickname. If the new nickname
// somehow already holds one, the old record is dropped instead and returned
// so the caller can release it.
func (t *Tracker) Rename(network, oldNick, newNick string) (*Identification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	oldKey, newKey := keyOf(network, oldNick), keyOf(network, newNick)
	id, ok := t.ids[oldKey]
	if !ok {
		return nil, false
	}
	delete(t.ids, oldKey)
	if _, taken := t.ids[newKey]; taken {
		return id, true
	}
	id.Nickname = newNick
	t.ids[newKey] = id
	return nil, false
}

// SetWatched updates the presence-subscription flag of an identification.
// Clearing the flag ends an identification that shares no channels.
func (t *Tracker) SetWatched(network, nick string, watched bool) (*Identification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := keyOf(network, nick)
	id, ok := t.ids[k]
	if !ok {
		return nil, false
	}
	id.Watched = watched
	if !watched && len(id.Channels) == 0 {
		delete(t.ids, k)
		return id, true
	}
	return nil, false
}

// ChannelGone is called when the bot itself leaves channel. Identifications
// that shared only that channel end.
func (t *Tracker) ChannelGone(network, channel string) []*Identification {
	t.mu.Lock()
	defer t.mu.Unlock()
	network, channel = strings.ToLower(network), strings.ToLower(channel)

	var removed []*Identification
	for k, id := range t.ids {
		if k.network != network {
			continue
		}
		delete(id.Channels, channel)
		if len(id.Channels) == 0 && !id.Watched {
			delete(t.ids, k)
			removed = append(removed, id)
		}
	}
	return removed
}

// Disconnect ends every identification on network.
func (t *Tracker) Disconnect(network string) []*Identification {
	t.mu.Lock()
	defer t.mu.Unlock()
	network = strings.ToLower(network)

	var removed []*Identification
	for k, id := range t.ids {
		if k.network == network {
			delete(t.ids, k)
			removed = append(removed, id)
		}
	}
	return removed
}

// RemoveAccount ends every identification bound to account.
func (t *Tracker) RemoveAccount(account string) []*Identification {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []*Identification
	for k, id := range t.ids {
		if strings.EqualFold(id.Account, account) {
			delete(t.ids, k)
			removed = append(removed, id)
		}
	}
	return removed
}

// Account returns the account bound to nick on network, if any.
func (t *Tracker) Account(network, nick string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.ids[keyOf(network, nick)]
	if !ok {
		return "", false
	}
	return id.Account, true
}

// Len returns the number of live identifications.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
