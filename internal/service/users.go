package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/observe"
)

func (s *Service) SaveUser(ctx context.Context, req domain.UserSaveRequest) (*domain.User, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageUsers); err != nil {
		return nil, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" {
		return nil, invalid("username", "required")
	}
	if !domain.ValidRole(req.Role) {
		return nil, invalid("role", "must be admin, manager or cashier")
	}

	now := time.Now().UTC()
	account := domain.UserAccount{
		User: domain.User{
			ID:        req.ID,
			Username:  req.Username,
			Email:     strings.TrimSpace(req.Email),
			Role:      req.Role,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if req.ID != "" {
		existing, err := s.repo.GetUser(ctx, req.ID)
		if err != nil {
			return nil, wrapStore("lookup user", err)
		}
		account.CreatedAt = existing.CreatedAt
		account.PasswordHash = existing.PasswordHash
		account.PINHash = existing.PINHash
	}

	if req.Password != "" {
		if len(req.Password) < 6 {
			return nil, invalid("password", "must be at least 6 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, &PersistenceError{Op: "hash password", Err: err}
		}
		account.PasswordHash = string(hash)
	} else if req.ID == "" && req.Role != domain.RoleCashier {
		return nil, invalid("password", "required")
	}

	if req.PIN != "" {
		if !domain.ValidPIN(req.PIN) {
			return nil, invalid("pin", "must be exactly 4 digits")
		}
		digest := domain.PINDigest(req.PIN)
		unique, err := s.pinUnique(ctx, digest, req.ID)
		if err != nil {
			return nil, err
		}
		if !unique {
			return nil, invalid("pin", "already in use by another cashier")
		}
		account.PINHash = digest
	} else if req.ID == "" && req.Role == domain.RoleCashier {
		return nil, invalid("pin", "required for cashiers")
	}

	saved, err := s.repo.SaveUser(ctx, account)
	if err != nil {
		return nil, wrapStore("save user", err)
	}
	s.publish(observe.TopicUsers, "saved", saved.ID)
	user := saved.User
	return &user, nil
}

// ResetPIN lets a reset_pin holder change a cashier's PIN without the
// full manage_users grant.
func (s *Service) ResetPIN(ctx context.Context, userID, pin string) error {
	if _, err := s.requirePermission(ctx, domain.PermResetPIN); err != nil {
		return err
	}
	if userID == "" {
		return invalid("user_id", "required")
	}
	if !domain.ValidPIN(pin) {
		return invalid("pin", "must be exactly 4 digits")
	}
	account, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return wrapStore("lookup user", err)
	}
	digest := domain.PINDigest(pin)
	unique, err := s.pinUnique(ctx, digest, userID)
	if err != nil {
		return err
	}
	if !unique {
		return invalid("pin", "already in use by another cashier")
	}
	account.PINHash = digest
	account.UpdatedAt = time.Now().UTC()
	if _, err := s.repo.SaveUser(ctx, *account); err != nil {
		return wrapStore("save user", err)
	}
	s.publish(observe.TopicUsers, "saved", userID)
	return nil
}

// pinUnique compares the digest against every cashier, excluding the
// user being edited so a self-rewrite of the same PIN passes.
func (s *Service) pinUnique(ctx context.Context, digest, excludeID string) (bool, error) {
	cashiers, err := s.repo.ListUsersByRole(ctx, domain.RoleCashier)
	if err != nil {
		return false, wrapStore("list cashiers", err)
	}
	for _, c := range cashiers {
		if c.ID == excludeID {
			continue
		}
		if c.PINHash == digest {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := s.requirePermission(ctx, domain.PermManageUsers); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, wrapStore("list users", err)
	}
	users := make([]domain.User, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, a.User)
	}
	return users, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := s.requirePermission(ctx, domain.PermManageUsers)
	if err != nil {
		return err
	}
	if id == "" {
		return invalid("id", "required")
	}
	if actor.ID == id {
		return invalid("id", "cannot delete your own account")
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return wrapStore("delete user", err)
	}
	s.publish(observe.TopicUsers, "deleted", id)
	return nil
}
