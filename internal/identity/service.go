package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultRole is the realm role granted to every new account.
const DefaultRole = "user"

// Provider is the subset of the identity provider used by Service.
type Provider interface {
	CreateUser(ctx context.Context, u NewUser) (string, error)
	DeleteUser(ctx context.Context, id string) error
	AssignRealmRole(ctx context.Context, userID, role string) error
	PasswordGrant(ctx context.Context, username, password string) (json.RawMessage, error)
}

// Users is the local user store used by Service.
type Users interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u User) (*User, error)
	Delete(ctx context.Context, id int64) error
}

// Service runs signup and signin against the provider and the local store.
type Service struct {
	idp    Provider
	users  Users
	role   string
	logger *slog.Logger
}

func NewService(idp Provider, users Users, role string, logger *slog.Logger) *Service {
	if role == "" {
		role = DefaultRole
	}
	return &Service{idp: idp, users: users, role: role, logger: logger}
}

// Signup creates the realm account, mirrors it locally and grants the
// default role. When a step fails, the steps that completed are undone in
// reverse order and the failing step's error is returned.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	comp := &compensation{logger: s.logger}

	kcID, err := s.idp.CreateUser(ctx, NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		if errors.Is(err, errUserExists) {
			return nil, fmt.Errorf("%w in identity provider", ErrUsernameTaken)
		}
		return nil, err
	}
	comp.done("delete realm user", func(ctx context.Context) error {
		return s.idp.DeleteUser(ctx, kcID)
	})

	user, err := s.users.Create(ctx, User{
		KCID:     kcID,
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		comp.rollback(ctx)
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("store local user: %w", err)
	}
	comp.done("delete local user", func(ctx context.Context) error {
		return s.users.Delete(ctx, user.ID)
	})

	if err := s.idp.AssignRealmRole(ctx, kcID, s.role); err != nil {
		comp.rollback(ctx)
		return nil, err
	}

	s.logger.Info("user signed up", slog.Int64("user_id", user.ID), slog.String("kc_id", kcID))
	return user, nil
}

// Signin returns the provider's token response unchanged.
func (s *Service) Signin(ctx context.Context, req SigninRequest) (json.RawMessage, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	return s.idp.PasswordGrant(ctx, req.Username, req.Password)
}

// compensation records completed steps of a multi-system operation.
type compensation struct {
	steps  []compensationStep
	logger *slog.Logger
}

type compensationStep struct {
	name string
	undo func(ctx context.Context) error
}

func (c *compensation) done(name string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, compensationStep{name: name, undo: undo})
}

// rollback undoes recorded steps newest first. Undo errors are logged only;
// cancellation of the request does not stop the cleanup.
func (c *compensation) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(c.steps) - 1; i >= 0; i-- {
		st := c.steps[i]
		if err := st.undo(ctx); err != nil {
			c.logger.Warn("compensation step failed", slog.String("step", st.name), slog.Any("err", err))
		}
	}
	c.steps = nil
}
