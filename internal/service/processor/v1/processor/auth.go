package processor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	serviceErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/storage/v1/errors"
)

const invalidCredentials = "invalid username or password"

func (proc *Processor) issueToken(user *modelstorage.UserStorageEntry) (*modeldto.Token, error) {
	accessToken, err := proc.secretary.NewToken(&modelprincipal.Principal{
		UserID:             user.ID,
		Username:           user.Username,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
		Method:             modelprincipal.MethodToken,
	})
	if err != nil {
		return nil, err
	}
	return &modeldto.Token{
		AccessToken:        accessToken,
		TokenType:          "bearer",
		ExpiresIn:          int64(proc.secretary.TokenTTL().Seconds()),
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	}, nil
}

// Login processes user login requests.
func (proc *Processor) Login(ctx context.Context, credentials modeldto.Credentials) (*modeldto.Token, error) {
	user, err := proc.storage.GetUserByUsername(ctx, strings.TrimSpace(credentials.Username))
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			return nil, &serviceErrors.UnauthorizedError{Msg: invalidCredentials}
		}
		return nil, err
	}
	if !proc.secretary.CheckPassword(user.PasswordHash, credentials.Password) {
		return nil, &serviceErrors.UnauthorizedError{Msg: invalidCredentials}
	}
	if !user.IsActive {
		return nil, &serviceErrors.InactiveUserError{}
	}
	if err = proc.storage.TouchLogin(ctx, user.ID, proc.now()); err != nil {
		return nil, err
	}
	return proc.issueToken(user)
}

// Register processes self-service sign up requests.
func (proc *Processor) Register(ctx context.Context, req modeldto.RegisterRequest) (*modeldto.User, error) {
	if !proc.cfg.ServerConfig.AllowRegistration {
		return nil, &serviceErrors.RegistrationClosedError{}
	}
	if err := validatePassword("password", req.Password); err != nil {
		return nil, err
	}
	user, err := proc.newUser(req.Username, req.Email, modelstorage.RoleViewer, req.Password, false)
	if err != nil {
		return nil, err
	}
	if err = proc.storage.AddNewUser(ctx, user); err != nil {
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

func (proc *Processor) newUser(username, email, role, password string, mustChange bool) (*modelstorage.UserStorageEntry, error) {
	hash, err := proc.secretary.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := proc.now()
	return &modelstorage.UserStorageEntry{
		ID:                 uuid.New().String(),
		Username:           strings.TrimSpace(username),
		Email:              strings.ToLower(strings.TrimSpace(email)),
		PasswordHash:       hash,
		Role:               role,
		IsActive:           true,
		MustChangePassword: mustChange,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Me returns the profile of the caller.
func (proc *Processor) Me(ctx context.Context, p *modelprincipal.Principal) (*modeldto.User, error) {
	user, err := proc.storage.GetUserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// ChangePassword replaces the password of the caller and issues a fresh token.
func (proc *Processor) ChangePassword(ctx context.Context, p *modelprincipal.Principal, req modeldto.ChangePasswordRequest) (*modeldto.Token, error) {
	user, err := proc.storage.GetUserByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !proc.secretary.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return nil, serviceErrors.Invalid("current_password", "does not match")
	}
	if err = validatePassword("new_password", req.NewPassword); err != nil {
		return nil, err
	}
	if req.NewPassword == req.CurrentPassword {
		return nil, serviceErrors.Invalid("new_password", "must differ from the current password")
	}
	if user.PasswordHash, err = proc.secretary.HashPassword(req.NewPassword); err != nil {
		return nil, err
	}
	user.MustChangePassword = false
	user.UpdatedAt = proc.now()
	if err = proc.storage.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return proc.issueToken(user)
}

// AuthenticateToken resolves a bearer token into a principal, reloading the user to honour deactivation.
func (proc *Processor) AuthenticateToken(ctx context.Context, accessToken string) (*modelprincipal.Principal, error) {
	claims, err := proc.secretary.ValidateToken(accessToken)
	if err != nil {
		return nil, &serviceErrors.UnauthorizedError{Msg: "invalid or expired token"}
	}
	user, err := proc.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &modelprincipal.Principal{
		UserID:             user.ID,
		Username:           user.Username,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
		Method:             modelprincipal.MethodToken,
	}, nil
}

// AuthenticateAPIKey resolves an API key into a principal carrying the role of its owner.
func (proc *Processor) AuthenticateAPIKey(ctx context.Context, key string) (*modelprincipal.Principal, error) {
	apiKey, err := proc.storage.GetAPIKeyByHash(ctx, proc.secretary.HashAPIKey(key))
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			return nil, &serviceErrors.UnauthorizedError{Msg: "invalid API key"}
		}
		return nil, err
	}
	now := proc.now()
	if apiKey.RevokedAt != nil {
		return nil, &serviceErrors.UnauthorizedError{Msg: "API key was revoked"}
	}
	if apiKey.ExpiresAt != nil && !now.Before(*apiKey.ExpiresAt) {
		return nil, &serviceErrors.UnauthorizedError{Msg: "API key has expired"}
	}
	user, err := proc.activeUser(ctx, apiKey.UserID)
	if err != nil {
		return nil, err
	}
	if err = proc.storage.TouchAPIKey(ctx, apiKey.ID, now); err != nil {
		proc.log.Warn().Err(err).Msgf("recording use of API key %s failed", apiKey.Prefix)
	}
	return &modelprincipal.Principal{
		UserID:             user.ID,
		Username:           user.Username,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
		Method:             modelprincipal.MethodAPIKey,
		APIKeyID:           apiKey.ID,
	}, nil
}

func (proc *Processor) activeUser(ctx context.Context, userID string) (*modelstorage.UserStorageEntry, error) {
	user, err := proc.storage.GetUserByID(ctx, userID)
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			return nil, &serviceErrors.UnauthorizedError{Msg: "user no longer exists"}
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, &serviceErrors.UnauthorizedError{Msg: "user is inactive"}
	}
	return user, nil
}

// CreateAPIKey issues a new API key for the caller. The plaintext key is only returned here.
func (proc *Processor) CreateAPIKey(ctx context.Context, p *modelprincipal.Principal, req modeldto.APIKeyRequest) (*modeldto.CreatedAPIKey, error) {
	key, prefix, hash, err := proc.secretary.NewAPIKey()
	if err != nil {
		return nil, err
	}
	now := proc.now()
	entry := &modelstorage.APIKeyStorageEntry{
		ID:        uuid.New().String(),
		UserID:    p.UserID,
		Name:      strings.TrimSpace(req.Name),
		Prefix:    prefix,
		KeyHash:   hash,
		CreatedAt: now,
	}
	if req.ExpiresInDays != nil {
		expiresAt := now.Add(time.Duration(*req.ExpiresInDays) * 24 * time.Hour)
		entry.ExpiresAt = &expiresAt
	}
	if err = proc.storage.AddNewAPIKey(ctx, entry); err != nil {
		return nil, err
	}
	return &modeldto.CreatedAPIKey{APIKey: toAPIKeyDTO(entry), Key: key}, nil
}

// ListAPIKeys returns the API keys of the caller.
func (proc *Processor) ListAPIKeys(ctx context.Context, p *modelprincipal.Principal) ([]modeldto.APIKey, error) {
	keys, err := proc.storage.ListAPIKeys(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]modeldto.APIKey, 0, len(keys))
	for i := range keys {
		out = append(out, toAPIKeyDTO(&keys[i]))
	}
	return out, nil
}

// RevokeAPIKey revokes a key owned by the caller. Admins may revoke any key.
func (proc *Processor) RevokeAPIKey(ctx context.Context, p *modelprincipal.Principal, keyID string) error {
	key, err := proc.storage.GetAPIKey(ctx, keyID)
	if err != nil {
		return err
	}
	if key.UserID != p.UserID && !p.HasRole(modelstorage.RoleAdmin) {
		// other users' keys are indistinguishable from missing ones
		return &storageErrors.NotFoundError{ID: keyID}
	}
	return proc.storage.RevokeAPIKey(ctx, keyID, proc.now())
}
