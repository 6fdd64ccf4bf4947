package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ecoproof-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// UserRepository persists users
type UserRepository interface {
	PutUser(ctx context.Context, user *models.User) error
	LoadUsers(ctx context.Context) (map[string]*models.User, error)
}

// UserDirectory maps user identifiers to profile, balance and role records
type UserDirectory struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	restored bool

	repo UserRepository
}

// NewUserDirectory creates a new user directory
func NewUserDirectory(repo UserRepository) *UserDirectory {
	return &UserDirectory{
		users: make(map[string]*models.User),
		repo:  repo,
	}
}

// Restore loads persisted users. It may run only once.
func (d *UserDirectory) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.restored {
		return fmt.Errorf("users already restored")
	}

	loaded, err := d.repo.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore users: %w", err)
	}
	d.users = loaded
	d.restored = true

	log.Info().Int("count", len(loaded)).Msg("Users restored")
	return nil
}

// save persists user and installs it; caller holds d.mu
func (d *UserDirectory) save(ctx context.Context, user *models.User) error {
	if err := d.repo.PutUser(ctx, user); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}
	d.users[user.ID] = user
	return nil
}

// Upsert creates a user or refreshes its profile fields.
// Balance, role, wallet and device token are kept on update.
func (d *UserDirectory) Upsert(ctx context.Context, p models.Profile) (*models.User, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, models.ErrInvalidInput.WithCause(errors.New("user id is required"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	user := &models.User{ID: p.ID, Role: models.RoleUser}
	existing, ok := d.users[p.ID]
	if ok {
		cp := *existing
		user = &cp
	}
	user.FirstName = p.FirstName
	user.LastName = p.LastName
	user.Username = p.Username
	user.LanguageCode = p.LanguageCode
	user.ProfilePictureURL = p.ProfilePictureURL
	user.IsBot = p.IsBot

	if err := d.save(ctx, user); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", p.ID).Bool("created", !ok).Msg("User profile synced")
	cp := *user
	return &cp, nil
}

// Get returns a copy of a user
func (d *UserDirectory) Get(id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// All returns every user ordered by id
func (d *UserDirectory) All() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Balance returns a user's token balance, zero for unknown users
func (d *UserDirectory) Balance(id string) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if user, ok := d.users[id]; ok {
		return user.Balance
	}
	return 0
}

// Role returns a user's role
func (d *UserDirectory) Role(id string) (models.Role, error) {
	user, err := d.Get(id)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// PayoutAddress returns the registered wallet address of a user
func (d *UserDirectory) PayoutAddress(id string) (string, error) {
	user, err := d.Get(id)
	if err != nil {
		return "", models.ErrNoPayoutAddress.WithCause(err)
	}
	if user.WalletAddress == nil || strings.TrimSpace(*user.WalletAddress) == "" {
		return "", models.ErrNoPayoutAddress
	}
	return strings.TrimSpace(*user.WalletAddress), nil
}

// update applies fn to a copy of an existing user and persists it
func (d *UserDirectory) update(ctx context.Context, id string, fn func(*models.User)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	cp := *existing
	fn(&cp)
	return d.save(ctx, &cp)
}

// SetPayoutAddress registers the wallet address rewards are sent to
func (d *UserDirectory) SetPayoutAddress(ctx context.Context, id, address string) error {
	address = strings.TrimSpace(address)
	if err := d.update(ctx, id, func(u *models.User) { u.WalletAddress = &address }); err != nil {
		return err
	}
	log.Info().Str("user_id", id).Msg("Wallet address updated")
	return nil
}

// SetDeviceToken registers the push notification device token of a user
func (d *UserDirectory) SetDeviceToken(ctx context.Context, id, token string) error {
	var t *string
	if token = strings.TrimSpace(token); token != "" {
		t = &token
	}
	return d.update(ctx, id, func(u *models.User) { u.DeviceToken = t })
}

// Credit adds amount to a user's balance, creating the record if needed,
// and returns the new balance
func (d *UserDirectory) Credit(ctx context.Context, id string, amount uint64) (uint64, error) {
	if id == "" {
		return 0, models.ErrInvalidInput.WithCause(errors.New("user id is required"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	user := &models.User{ID: id, Role: models.RoleUser}
	if existing, ok := d.users[id]; ok {
		cp := *existing
		user = &cp
	}
	user.Balance += amount

	if err := d.save(ctx, user); err != nil {
		return 0, err
	}

	log.Info().Str("user_id", id).Uint64("amount", amount).Uint64("balance", user.Balance).Msg("Balance credited")
	return user.Balance, nil
}

// Debit subtracts amount from an existing user's balance and returns the new balance.
// It fails without changes when the balance is too low.
func (d *UserDirectory) Debit(ctx context.Context, id string, amount uint64) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.users[id]
	if !ok {
		return 0, models.ErrUserNotFound
	}
	if existing.Balance < amount {
		return 0, models.ErrInvalidInput.WithCause(
			fmt.Errorf("balance %d is lower than debit %d", existing.Balance, amount))
	}
	cp := *existing
	cp.Balance -= amount
	if err := d.save(ctx, &cp); err != nil {
		return 0, err
	}

	log.Info().Str("user_id", id).Uint64("amount", amount).Uint64("balance", cp.Balance).Msg("Balance debited")
	return cp.Balance, nil
}

// hasAdmin reports whether any user holds the Admin role; caller holds d.mu
func (d *UserDirectory) hasAdmin() bool {
	for _, u := range d.users {
		if u.Role == models.RoleAdmin {
			return true
		}
	}
	return false
}

// SetRole changes the role of target on behalf of caller.
// While no Admin exists any known caller may promote the first Admin;
// afterwards the caller must be an Admin.
func (d *UserDirectory) SetRole(ctx context.Context, callerID, targetID string, role models.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	caller, ok := d.users[callerID]
	if !ok {
		return models.ErrCallerNotFound
	}
	target, ok := d.users[targetID]
	if !ok {
		return models.ErrTargetNotFound
	}

	bootstrap := role == models.RoleAdmin && !d.hasAdmin()
	if !bootstrap && caller.Role != models.RoleAdmin {
		return models.ErrForbidden
	}

	cp := *target
	cp.Role = role
	if err := d.save(ctx, &cp); err != nil {
		return err
	}

	log.Info().
		Str("caller_id", callerID).
		Str("target_id", targetID).
		Str("role", string(role)).
		Bool("bootstrap", bootstrap).
		Msg("User role updated")
	return nil
}
