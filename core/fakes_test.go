package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var errStoreDown = errors.New("store unavailable")

type memUser struct {
	CredentialRecord
	Email string
}

// memoryUserRepo is an in-memory UserRepository with per-operation error injection.
type memoryUserRepo struct {
	mu     sync.Mutex
	users  []memUser
	nextID int64

	findErr   error
	countErr  error
	fetchErr  error
	createErr error

	lookups int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{nextID: 1}
}

func (r *memoryUserRepo) add(username, hash, role string, staff bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.users = append(r.users, memUser{CredentialRecord: CredentialRecord{
		ID: id, Username: username, PasswordHash: hash, Role: role, IsStaff: staff,
	}})
	return id
}

func (r *memoryUserRepo) FindByUsername(_ context.Context, username string) (*CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if u.Username == username {
			rec := u.CredentialRecord
			return &rec, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryUserRepo) FindByID(_ context.Context, id int64) (*UserSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if u.ID == id {
			return &UserSummary{ID: u.ID, Username: u.Username, Role: u.Role}, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryUserRepo) matching(filter FilterSpec) []UserSummary {
	var out []UserSummary
	for _, u := range r.users {
		role := u.Role
		if role == "" {
			role = DefaultRole
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(u.Username), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.Role != "" && role != filter.Role {
			continue
		}
		out = append(out, UserSummary{ID: u.ID, Username: u.Username, Role: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryUserRepo) CountMatching(_ context.Context, filter FilterSpec) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return len(r.matching(filter)), nil
}

func (r *memoryUserRepo) FetchPage(_ context.Context, filter FilterSpec, window PageWindow) ([]UserSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	all := r.matching(filter)
	if window.Offset >= len(all) {
		return nil, nil
	}
	end := min(len(all), window.Offset+window.Limit)
	return all[window.Offset:end], nil
}

func (r *memoryUserRepo) Create(_ context.Context, u NewUser) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return 0, r.createErr
	}
	for _, existing := range r.users {
		if existing.Username == u.Username {
			return 0, ErrUsernameTaken
		}
	}
	id := r.nextID
	r.nextID++
	r.users = append(r.users, memUser{
		CredentialRecord: CredentialRecord{ID: id, Username: u.Username, PasswordHash: u.PasswordHash, Role: u.Role, IsStaff: u.IsStaff},
		Email:            u.Email,
	})
	return id, nil
}

func (r *memoryUserRepo) HasStaff(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return false, r.findErr
	}
	for _, u := range r.users {
		if u.IsStaff {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryUserRepo) byUsername(username string) (memUser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, true
		}
	}
	return memUser{}, false
}
