// Package accounts holds account records: identity keys mapped to a
// password and an ordered list of permission rules.
package accounts

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrExists   = errors.New("account already exists")
	ErrNotFound = errors.New("no such account")
)

// Account is a named bundle of credentials and permission rules.
type Account struct {
	Password    *Password `json:"password,omitempty"`
	Permissions []string  `json:"permissions"`
}

// SetPassword replaces the password record with a freshly salted hash.
func (a *Account) SetPassword(plaintext string) error {
	p, err := NewPassword(plaintext)
	if err != nil {
		return err
	}
	a.Password = p
	return nil
}

// VerifyPassword reports whether plaintext matches the stored password.
// Accounts without a password never verify.
func (a *Account) VerifyPassword(plaintext string) bool {
	return a.Password.Verify(plaintext)
}

// Grant appends a rule unless it is already present. It reports whether the
// rule list changed.
func (a *Account) Grant(rule string) bool {
	for _, r := range a.Permissions {
		if r == rule {
			return false
		}
	}
	a.Permissions = append(a.Permissions, rule)
	return true
}

// Revoke removes every occurrence of rule. It reports whether the rule list
// changed.
func (a *Account) Revoke(rule string) bool {
	kept := a.Permissions[:0]
	for _, r := range a.Permissions {
		if r != rule {
			kept = append(kept, r)
		}
	}
	changed := len(kept) != len(a.Permissions)
	a.Permissions = kept
	return changed
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := &Account{Permissions: append([]string(nil), a.Permissions...)}
	if a.Password != nil {
		p := *a.Password
		p.Salt = append([]byte(nil), a.Password.Salt...)
		p.Hash = append([]byte(nil), a.Password.Hash...)
		c.Password = &p
	}
	return c
}

// Store maps identity keys to accounts. Keys compare case-insensitively and
// iterate in insertion order.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*entry
	order    []string
}

type entry struct {
	key     string
	account *Account
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]*entry)}
}

func fold(key string) string {
	return strings.ToLower(key)
}

// Get returns a copy of the account stored under key.
func (s *Store) Get(key string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[fold(key)]
	if !ok {
		return nil, false
	}
	return e.account.Clone(), true
}

// Put stores the account under key, replacing any existing record.
func (s *Store) Put(key string, a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fold(key)
	if e, ok := s.accounts[k]; ok {
		e.account = a.Clone()
		return
	}
	s.accounts[k] = &entry{key: key, account: a.Clone()}
	s.order = append(s.order, k)
}

// Create stores a new account and fails if the key is taken.
func (s *Store) Create(key string, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fold(key)
	if _, ok := s.accounts[k]; ok {
		return ErrExists
	}
	s.accounts[k] = &entry{key: key, account: a.Clone()}
	s.order = append(s.order, k)
	return nil
}

// Update applies fn to the stored account under the store lock.
func (s *Store) Update(key string, fn func(a *Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.accounts[fold(key)]
	if !ok {
		return ErrNotFound
	}
	a := e.account.Clone()
	if err := fn(a); err != nil {
		return err
	}
	e.account = a
	return nil
}

// Delete removes the account stored under key.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fold(key)
	if _, ok := s.accounts[k]; !ok {
		return false
	}
	delete(s.accounts, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the stored keys, as originally spelled, in insertion order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.order))
	for _, k := range s.order {
		keys = append(keys, s.accounts[k].key)
	}
	return keys
}

// Each calls fn with a copy of every account in insertion order until fn
// returns false.
func (s *Store) Each(fn func(key string, a *Account) bool) {
	s.mu.RLock()
	entries := make([]entry, 0, len(s.order))
	for _, k := range s.order {
		e := s.accounts[k]
		entries = append(entries, entry{key: e.key, account: e.account.Clone()})
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if !fn(e.key, e.account) {
			return
		}
	}
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
