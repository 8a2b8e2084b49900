package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/narvanalabs/resque/internal/auth"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/store"
)

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Users handles account commands.
type Users struct {
	deps Dependencies
}

// NewUsers creates the account handlers.
func NewUsers(deps Dependencies) *Users {
	return &Users{deps: deps.withDefaults()}
}

// Register creates a user and records UserRegistered.
func (h *Users) Register(ctx context.Context, tx store.Tx, cmd RegisterUser) (models.User, error) {
	email, err := models.NewEmail(cmd.Email)
	if err != nil {
		return models.User{}, err
	}
	provider := models.AuthProviderEmail
	if cmd.Provider != "" {
		if provider, err = models.ParseAuthProvider(cmd.Provider); err != nil {
			return models.User{}, err
		}
	}

	if _, err := tx.Users().GetByEmail(ctx, email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.User{}, fmt.Errorf("looking up %s: %w", email, err)
	}

	var password *models.HashedPassword
	if provider == models.AuthProviderEmail {
		if err := models.ValidatePlainPassword(cmd.Password); err != nil {
			return models.User{}, err
		}
		digest, err := h.deps.Hasher.Hash(cmd.Password)
		if err != nil {
			return models.User{}, err
		}
		hp, err := models.NewHashedPassword(digest)
		if err != nil {
			return models.User{}, err
		}
		password = &hp
	}

	user, err := models.NewUser(h.deps.IDs.Generate(), email, provider, password)
	if err != nil {
		return models.User{}, err
	}
	if err := tx.Users().Save(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("saving user: %w", err)
	}

	tx.Publish(UserRegistered{
		EventMeta: message.NewEventMeta(),
		UserID:    user.ID,
		Email:     user.Email.String(),
		Provider:  string(user.Provider),
	})
	h.deps.Logger.Info("user registered", slog.String("user_id", user.ID.String()))
	return user, nil
}

// Login verifies credentials and issues an access token.
func (h *Users) Login(ctx context.Context, tx store.Tx, cmd Login) (LoginResult, error) {
	email, err := models.NewEmail(cmd.Email)
	if err != nil {
		return LoginResult{}, auth.ErrInvalidCredentials
	}
	user, err := tx.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("looking up %s: %w", email, err)
	}
	if err := auth.AuthenticateUser(user, cmd.Password, h.deps.Hasher); err != nil {
		return LoginResult{}, err
	}
	token, err := h.deps.Tokens.GenerateToken(user.ID, user.Email.String())
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: token, TokenType: auth.TokenType}, nil
}

// Deactivate marks the actor's own account inactive and records UserDeactivated.
func (h *Users) Deactivate(ctx context.Context, tx store.Tx, cmd DeactivateUser) (models.User, error) {
	if cmd.ActorID != cmd.UserID {
		return models.User{}, models.ErrPermissionDenied.Errorf("users may only deactivate their own account")
	}
	user, err := loadUser(ctx, tx, cmd.UserID)
	if err != nil {
		return models.User{}, err
	}
	user, err = user.UpdateStatus(models.UserStatusInactive)
	if err != nil {
		return models.User{}, err
	}
	if err := tx.Users().Update(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("updating user: %w", err)
	}
	tx.Publish(UserDeactivated{EventMeta: message.NewEventMeta(), UserID: user.ID})
	return user, nil
}
