package processor

import (
	"context"
	"strings"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelprincipal"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
	serviceErrors "github.com/danilovkiri/dk-go-balance-tracker/internal/service/processor/v1/errors"
)

// CreateUser creates a user on behalf of an admin. Without a password a temporary one is generated.
func (proc *Processor) CreateUser(ctx context.Context, p *modelprincipal.Principal, req modeldto.CreateUserRequest) (*modeldto.CreatedUser, error) {
	if !modelstorage.ValidRole(req.Role) {
		return nil, serviceErrors.Invalid("role", "must be one of admin, trader, viewer")
	}
	password := req.Password
	var temporary string
	if password == "" {
		generated, err := proc.secretary.NewTemporaryPassword()
		if err != nil {
			return nil, err
		}
		password, temporary = generated, generated
	} else if err := validatePassword("password", password); err != nil {
		return nil, err
	}
	user, err := proc.newUser(req.Username, req.Email, req.Role, password, true)
	if err != nil {
		return nil, err
	}
	if err = proc.storage.AddNewUser(ctx, user); err != nil {
		return nil, err
	}
	proc.log.Info().Msgf("user %s (%s) was created by %s", user.Username, user.Role, p.Username)
	return &modeldto.CreatedUser{User: toUserDTO(user), TemporaryPassword: temporary}, nil
}

// ListUsers lists users page by page.
func (proc *Processor) ListUsers(ctx context.Context, query modeldto.UserQuery) ([]modeldto.User, error) {
	if query.Role != "" && !modelstorage.ValidRole(query.Role) {
		return nil, serviceErrors.Invalid("role", "must be one of admin, trader, viewer")
	}
	limit, offset := page(query.Limit, query.Offset)
	users, err := proc.storage.ListUsers(ctx, modelstorage.UserFilter{
		Role:   query.Role,
		Active: query.Active,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]modeldto.User, 0, len(users))
	for i := range users {
		out = append(out, toUserDTO(&users[i]))
	}
	return out, nil
}

// GetUser returns a user to an admin or to the user themself.
func (proc *Processor) GetUser(ctx context.Context, p *modelprincipal.Principal, userID string) (*modeldto.User, error) {
	if _, err := targetUser(p, userID); err != nil {
		return nil, err
	}
	user, err := proc.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// UpdateUser changes email, role or activity of a user. Admins cannot demote or deactivate themselves.
func (proc *Processor) UpdateUser(ctx context.Context, p *modelprincipal.Principal, userID string, req modeldto.UpdateUserRequest) (*modeldto.User, error) {
	user, err := proc.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	self := user.ID == p.UserID
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil && *req.Role != user.Role {
		if !modelstorage.ValidRole(*req.Role) {
			return nil, serviceErrors.Invalid("role", "must be one of admin, trader, viewer")
		}
		if self {
			return nil, &serviceErrors.ForbiddenError{Msg: "cannot change your own role"}
		}
		user.Role = *req.Role
	}
	if req.IsActive != nil && *req.IsActive != user.IsActive {
		if self && !*req.IsActive {
			return nil, &serviceErrors.ForbiddenError{Msg: "cannot deactivate yourself"}
		}
		user.IsActive = *req.IsActive
	}
	user.UpdatedAt = proc.now()
	if err = proc.storage.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	dto := toUserDTO(user)
	return &dto, nil
}

// DeactivateUser soft-deletes a user.
func (proc *Processor) DeactivateUser(ctx context.Context, p *modelprincipal.Principal, userID string) error {
	if userID == p.UserID {
		return &serviceErrors.ForbiddenError{Msg: "cannot delete yourself"}
	}
	user, err := proc.storage.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}
	user.IsActive = false
	user.UpdatedAt = proc.now()
	return proc.storage.UpdateUser(ctx, user)
}

// ResetPassword replaces the password of a user with a temporary one that must be changed.
func (proc *Processor) ResetPassword(ctx context.Context, p *modelprincipal.Principal, userID string) (*modeldto.PasswordReset, error) {
	user, err := proc.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	temporary, err := proc.secretary.NewTemporaryPassword()
	if err != nil {
		return nil, err
	}
	if user.PasswordHash, err = proc.secretary.HashPassword(temporary); err != nil {
		return nil, err
	}
	user.MustChangePassword = true
	user.UpdatedAt = proc.now()
	if err = proc.storage.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	proc.log.Info().Msgf("password of %s was reset by %s", user.Username, p.Username)
	return &modeldto.PasswordReset{UserID: user.ID, TemporaryPassword: temporary}, nil
}
