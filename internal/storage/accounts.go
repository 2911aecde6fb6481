package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/AndrioCelos/CBot-sub003/internal/accounts"
)

const keyAccountPrefix = "account "

type accountRecord struct {
	Name        string             `json:"name"`
	Order       int                `json:"order"`
	Password    *accounts.Password `json:"password,omitempty"`
	Permissions []string           `json:"permissions"`
}

// AccountDB persists the account store in a buntdb file.
type AccountDB struct {
	db *buntdb.DB
}

// OpenAccountDB opens or creates the database at path. ":memory:" keeps it
// in memory only.
func OpenAccountDB(path string) (*AccountDB, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open account database: %w", err)
	}
	return &AccountDB{db: db}, nil
}

// Close closes the database.
func (d *AccountDB) Close() error {
	return d.db.Close()
}

// Load adds every stored account to store, in the order they were saved,
// and returns how many were loaded.
func (d *AccountDB) Load(store *accounts.Store) (int, error) {
	var records []accountRecord
	err := d.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys(keyAccountPrefix+"*", func(key, value string) bool {
			var r accountRecord
			if err := json.Unmarshal([]byte(value), &r); err != nil {
				decodeErr = fmt.Errorf("could not load account %q: %w", strings.TrimPrefix(key, keyAccountPrefix), err)
				return false
			}
			records = append(records, r)
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if err != nil {
		return 0, err
	}

	slices.SortStableFunc(records, func(a, b accountRecord) int { return a.Order - b.Order })
	for _, r := range records {
		store.Put(r.Name, &accounts.Account{Password: r.Password, Permissions: r.Permissions})
	}
	return len(records), nil
}

// Save replaces the stored accounts with the contents of store.
func (d *AccountDB) Save(store *accounts.Store) error {
	var records []accountRecord
	store.Each(func(key string, a *accounts.Account) bool {
		records = append(records, accountRecord{
			Name:        key,
			Order:       len(records),
			Password:    a.Password,
			Permissions: a.Permissions,
		})
		return true
	})

	return d.db.Update(func(tx *buntdb.Tx) error {
		var stale []string
		err := tx.AscendKeys(keyAccountPrefix+"*", func(key, _ string) bool {
			stale = append(stale, key)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}

		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("could not save account %q: %w", r.Name, err)
			}
			if _, _, err := tx.Set(keyAccountPrefix+strings.ToLower(r.Name), string(data), nil); err != nil {
				return err
			}
		}
		return nil
	})
}
