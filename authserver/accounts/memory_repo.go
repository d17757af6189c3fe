package accounts

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Repo = (*MemoryRepo)(nil)

type MemoryRepo struct {
	accounts    map[string]*Account
	usernameIDs map[string]string // username to account id
	lock        sync.RWMutex
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		accounts:    make(map[string]*Account),
		usernameIDs: make(map[string]string),
	}
}

func (r *MemoryRepo) Create(account *Account) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.usernameIDs[account.Username]; ok {
		return ErrUsernameTaken
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	stored := *account
	r.accounts[account.ID] = &stored
	r.usernameIDs[account.Username] = account.ID
	return nil
}

func (r *MemoryRepo) GetByID(id string) (*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *MemoryRepo) GetByUsername(username string) (*Account, error) {
	r.lock.RLock()
	id, ok := r.usernameIDs[username]
	r.lock.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(id)
}

func (r *MemoryRepo) SetLastLogin(id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.LastLogin = at
	return nil
}

// Delete removes an account, which invalidates its outstanding refresh tokens.
func (r *MemoryRepo) Delete(id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.usernameIDs, a.Username)
	delete(r.accounts, id)
	return nil
}

func (r *MemoryRepo) List(offset, limit int) ([]*Account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	all := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		copied := *a
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	if offset >= len(all) {
		return []*Account{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
