package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bidyaasp/project-management/internal/config"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/internal/utils"
	"github.com/bidyaasp/project-management/pkg/response"
	"gorm.io/gorm"
)

var errInvalidCredentials = response.NewUnauthorized("invalid email or password")

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, jwtConfig: jwtCfg}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
	User            *models.User
}

type RefreshResult struct {
	AccessToken     string
	AccessExpireAt  time.Time
	RefreshToken    string
	RefreshExpireAt time.Time
}

// Login authenticates by email and password and issues an access token
// plus a refresh token.
func (s *AuthService) Login(req *LoginRequest, clientIP string) (*LoginResult, error) {
	var user models.User
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, response.NewUnauthorized("user is disabled")
	}

	accessToken, accessExpireAt, err := s.issueAccessToken(&user)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshRecord, err := s.newRefreshRecord(user.ID, clientIP)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(refreshRecord).Error; err != nil {
			return err
		}
		return tx.Model(&user).Update("last_login", now).Error
	})
	if err != nil {
		return nil, err
	}
	user.LastLogin = &now

	return &LoginResult{
		AccessToken:     accessToken,
		AccessExpireAt:  accessExpireAt,
		RefreshToken:    refreshToken,
		RefreshExpireAt: refreshRecord.ExpiresAt,
		User:            &user,
	}, nil
}

// Refresh exchanges a usable refresh token for a new pair. The presented
// token is revoked and linked to its replacement.
func (s *AuthService) Refresh(refreshToken string, clientIP string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, response.NewUnauthorized("refresh token required")
	}

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid refresh token")
		}
		return nil, err
	}
	now := time.Now()
	if !stored.Usable(now) {
		return nil, response.NewUnauthorized("refresh token expired or revoked")
	}

	var user models.User
	if err := s.db.First(&user, stored.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("invalid refresh token")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, response.NewUnauthorized("user is disabled")
	}

	accessToken, accessExpireAt, err := s.issueAccessToken(&user)
	if err != nil {
		return nil, err
	}
	newToken, newRecord, err := s.newRefreshRecord(user.ID, clientIP)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(newRecord).Error; err != nil {
			return err
		}
		// the revoked_at guard makes a concurrent second refresh of the same token lose
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", stored.ID).
			Updates(map[string]interface{}{
				"revoked_at":           now,
				"replaced_by_token_id": newRecord.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewUnauthorized("refresh token expired or revoked")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken:     accessToken,
		AccessExpireAt:  accessExpireAt,
		RefreshToken:    newToken,
		RefreshExpireAt: newRecord.ExpiresAt,
	}, nil
}

// RevokeRefreshToken is idempotent; unknown tokens are ignored.
func (s *AuthService) RevokeRefreshToken(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", time.Now()).Error
}

func (s *AuthService) issueAccessToken(user *models.User) (string, time.Time, error) {
	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 24
	}
	token, err := utils.GenerateToken(user.ID, user.Email, string(user.Role), hours)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(time.Duration(hours) * time.Hour), nil
}

func (s *AuthService) newRefreshRecord(userID uint, clientIP string) (string, *models.RefreshToken, error) {
	hours := s.jwtConfig.RefreshExpireHour
	if hours <= 0 {
		hours = 720
	}
	token, hash, err := generateRefreshToken()
	if err != nil {
		return "", nil, err
	}
	return token, &models.RefreshToken{
		UserID:      userID,
		TokenHash:   hash,
		ExpiresAt:   time.Now().Add(time.Duration(hours) * time.Hour),
		CreatedByIP: clientIP,
	}, nil
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	tokenHash = hashRefreshToken(token)
	return token, tokenHash, nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword also revokes every outstanding refresh token of the user.
func (s *AuthService) ChangePassword(userID uint, req *ChangePasswordRequest) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return response.NewBadRequest("incorrect old password")
	}

	hashedPassword, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("password", hashedPassword).Error; err != nil {
			return err
		}
		return revokeUserTokens(tx, user.ID)
	})
}
