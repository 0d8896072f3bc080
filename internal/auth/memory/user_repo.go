// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package memory implements auth.UserRepository in process memory for the
// HTTP handler tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// UserRepository is an in-memory auth.UserRepository. Stored values are
// copied on the way in and out so callers never share state with the store.
type UserRepository struct {
	mu       sync.RWMutex
	nextUser int64
	nextProf int64
	users    map[int64]auth.User
	byEmail  map[string]int64
	profiles map[int64]auth.Profile // keyed by user id
	now      func() time.Time
}

// NewUserRepository creates an empty repository. IDs start at 1.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:    make(map[int64]auth.User),
		byEmail:  make(map[string]int64),
		profiles: make(map[int64]auth.Profile),
		now:      time.Now,
	}
}

// Create stores user and profile and assigns both IDs.
func (r *UserRepository) Create(_ context.Context, user *auth.User, profile *auth.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return oops.Code("USER_EMAIL_TAKEN").With("email", user.Email).Wrap(auth.ErrEmailTaken)
	}

	r.nextUser++
	r.nextProf++
	user.ID = r.nextUser
	profile.ID = r.nextProf
	profile.UserID = user.ID

	r.users[user.ID] = cloneUser(*user)
	r.byEmail[user.Email] = user.ID
	r.profiles[user.ID] = cloneProfile(*profile)
	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(_ context.Context, id int64) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	out := cloneUser(u)
	return &out, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// GetProfile retrieves the profile owned by userID.
func (r *UserRepository) GetProfile(_ context.Context, userID int64) (*auth.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("user_id", userID).Wrap(auth.ErrProfileNotFound)
	}
	out := cloneProfile(p)
	return &out, nil
}

// UpdateProfile merges update into the stored profile.
func (r *UserRepository) UpdateProfile(_ context.Context, userID int64, update auth.ProfileUpdate) (*auth.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, oops.Code("PROFILE_NOT_FOUND").With("user_id", userID).Wrap(auth.ErrProfileNotFound)
	}
	now := r.now()
	update.Apply(&p)
	p.UpdatedAt = now
	r.profiles[userID] = cloneProfile(p)
	r.touch(userID, now)

	out := cloneProfile(p)
	return &out, nil
}

// UpdatePassword replaces the password hash.
func (r *UserRepository) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", userID).Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = r.now()
	r.users[userID] = u
	return nil
}

// SetResetToken stores token as the single pending reset token.
func (r *UserRepository) SetResetToken(_ context.Context, userID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", userID).Wrap(auth.ErrNotFound)
	}
	u.ResetToken = &token
	u.UpdatedAt = r.now()
	r.users[userID] = u
	return nil
}

// ConsumeResetToken sets the new hash and clears the token only when the
// stored token equals token.
func (r *UserRepository) ConsumeResetToken(_ context.Context, userID int64, token, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || u.ResetToken == nil || *u.ResetToken != token {
		return oops.Code("RESET_TOKEN_MISMATCH").With("id", userID).Wrap(auth.ErrResetTokenMismatch)
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.UpdatedAt = r.now()
	r.users[userID] = u
	return nil
}

// Delete removes the user and its profile.
func (r *UserRepository) Delete(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", userID).Wrap(auth.ErrNotFound)
	}
	delete(r.users, userID)
	delete(r.byEmail, u.Email)
	delete(r.profiles, userID)
	return nil
}

// touch refreshes the user's updated_at. Callers hold mu.
func (r *UserRepository) touch(userID int64, now time.Time) {
	if u, ok := r.users[userID]; ok {
		u.UpdatedAt = now
		r.users[userID] = u
	}
}

func cloneUser(u auth.User) auth.User {
	u.ResetToken = cloneString(u.ResetToken)
	return u
}

func cloneProfile(p auth.Profile) auth.Profile {
	p.Bio = cloneString(p.Bio)
	p.ProfilePicture = cloneString(p.ProfilePicture)
	return p
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ auth.UserRepository = (*UserRepository)(nil)
