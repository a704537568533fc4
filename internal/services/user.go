package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/internal/utils"
	"github.com/bidyaasp/project-management/pkg/optional"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

type UserService struct {
	db    *gorm.DB
	authz *authz.Authorizer
}

func NewUserService(db *gorm.DB, authorizer *authz.Authorizer) *UserService {
	return &UserService{db: db, authz: authorizer}
}

type CreateUserRequest struct {
	Name     string      `json:"name" binding:"required,max=255"`
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,min=6"`
	Role     models.Role `json:"role"`
}

type UpdateProfileRequest struct {
	Name  optional.Field[string] `json:"name"`
	Email optional.Field[string] `json:"email"`
}

// Create adds a user; only admins may. Role defaults to developer.
func (s *UserService) Create(ctx context.Context, p authz.Principal, req *CreateUserRequest) (*models.User, error) {
	if err := s.authz.Authorize(p, authz.UserCreate, authz.None); err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = models.RoleDeveloper
	}
	if !req.Role.Valid() {
		return nil, response.NewValidationFailed("invalid role", map[string]models.Role{"role": req.Role})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, response.NewValidationFailed("name is required", map[string]string{"name": req.Name})
	}
	email := normalizeEmail(req.Email)

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:        name,
		Email:       email,
		Password:    hash,
		Role:        req.Role,
		IsActive:    true,
		CreatedByID: actorID(p),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureEmailFree(tx, email, 0); err != nil {
			return err
		}
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RoleInfo is one entry of the role catalogue. IDs follow models.Roles order.
type RoleInfo struct {
	ID   int         `json:"id"`
	Name models.Role `json:"name"`
}

// Roles lists the assignable roles. Developers are not allowed to see them.
func (s *UserService) Roles(p authz.Principal) ([]RoleInfo, error) {
	if err := s.authz.Authorize(p, authz.RoleList, authz.None); err != nil {
		return nil, err
	}
	roles := make([]RoleInfo, len(models.Roles))
	for i, r := range models.Roles {
		roles[i] = RoleInfo{ID: i + 1, Name: r}
	}
	return roles, nil
}

// Me returns the principal's own record.
func (s *UserService) Me(p authz.Principal) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, p.ID).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// UpdateProfile changes the principal's own name or email.
func (s *UserService) UpdateProfile(ctx context.Context, p authz.Principal, req *UpdateProfileRequest) (*models.User, error) {
	updates := map[string]interface{}{}
	if req.Name.Set {
		name, ok := req.Name.Get()
		if !ok || strings.TrimSpace(name) == "" {
			return nil, response.NewValidationFailed("name cannot be empty", map[string]interface{}{"name": req.Name.Ptr()})
		}
		updates["name"] = strings.TrimSpace(name)
	}
	if req.Email.Set {
		email, ok := req.Email.Get()
		if !ok || !strings.Contains(email, "@") {
			return nil, response.NewValidationFailed("invalid email", map[string]interface{}{"email": req.Email.Ptr()})
		}
		updates["email"] = normalizeEmail(email)
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, p.ID).Error; err != nil {
			return notFound(err, "user")
		}
		if email, ok := updates["email"].(string); ok {
			if email == user.Email {
				delete(updates, "email")
			} else if err := ensureEmailFree(tx, email, user.ID); err != nil {
				return err
			}
		}
		if name, ok := updates["name"].(string); ok && name == user.Name {
			delete(updates, "name")
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&user).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ToggleActivation flips is_active on another user.
func (s *UserService) ToggleActivation(ctx context.Context, p authz.Principal, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return notFound(err, "user")
		}
		if err := s.authz.Authorize(p, authz.UserToggleActivation, authz.UserTarget(&user)); err != nil {
			return err
		}
		user.IsActive = !user.IsActive
		if err := tx.Model(&user).Update("is_active", user.IsActive).Error; err != nil {
			return err
		}
		if user.IsActive {
			return nil
		}
		// deactivation ends every session the user still holds
		return revokeUserTokens(tx, user.ID)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Delete removes another user. Rows that referenced the user keep existing
// with the reference cleared, so history stays intact.
func (s *UserService) Delete(ctx context.Context, p authz.Principal, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return notFound(err, "user")
		}
		if err := s.authz.Authorize(p, authz.UserDelete, authz.UserTarget(&user)); err != nil {
			return err
		}

		nullify := []struct {
			model  interface{}
			column string
		}{
			{&models.ProjectHistory{}, "user_id"},
			{&models.TaskHistory{}, "user_id"},
			{&models.Task{}, "assignee_id"},
			{&models.Task{}, "created_by"},
			{&models.Project{}, "created_by"},
			{&models.Comment{}, "author_id"},
			{&models.TimeLog{}, "user_id"},
			{&models.SystemLog{}, "user_id"},
			{&models.User{}, "created_by_id"},
		}
		for _, n := range nullify {
			if err := tx.Model(n.model).Where(n.column+" = ?", id).Update(n.column, nil).Error; err != nil {
				return fmt.Errorf("clear %s: %w", n.column, err)
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}

		return writeSystemLog(tx, &models.SystemLog{
			Level:   "info",
			Module:  "user",
			Action:  "delete",
			Message: fmt.Sprintf("user %s (#%d) deleted", user.Email, user.ID),
			UserID:  actorID(p),
			Extra:   map[string]interface{}{"deleted_user_id": user.ID, "role": user.Role},
		})
	})
}

func ensureEmailFree(tx *gorm.DB, email string, exceptID uint) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, exceptID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return response.NewConflict("email already in use")
	}
	return nil
}

func revokeUserTokens(tx *gorm.DB, userID uint) error {
	return tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", tx.NowFunc()).Error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
