package middleware

import (
	"strings"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/internal/utils"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID    = "user_id"
	ContextEmail     = "email"
	ContextRole      = "role"
	ContextPrincipal = "principal"
)

// UserLookup loads the account a token names.
type UserLookup interface {
	GetUserByID(id uint) (*models.User, error)
}

// AuthRequired resolves the bearer token into a Principal. Tokens carrying
// a role outside the known set are rejected, as are tokens whose user was
// deleted or deactivated. The role is taken from the stored user so role
// changes apply to tokens already issued.
func AuthRequired(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		p, email, err := ResolvePrincipal(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		user, err := users.GetUserByID(p.ID)
		if err != nil {
			if response.IsNotFound(err) {
				response.Unauthorized(c, "user not found")
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}
		if !user.IsActive {
			response.Unauthorized(c, "user is inactive")
			c.Abort()
			return
		}
		p.Role = user.Role

		c.Set(ContextUserID, p.ID)
		c.Set(ContextEmail, email)
		c.Set(ContextRole, string(p.Role))
		c.Set(ContextPrincipal, p)

		c.Next()
	}
}

// ResolvePrincipal parses an access token.
func ResolvePrincipal(token string) (authz.Principal, string, error) {
	claims, err := utils.ParseToken(token)
	if err != nil {
		return authz.Principal{}, "", err
	}
	role, ok := models.ParseRole(claims.Role)
	if !ok || claims.UserID == 0 {
		return authz.Principal{}, "", utils.ErrInvalidToken
	}
	return authz.Principal{ID: claims.UserID, Role: role}, claims.Email, nil
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter for EventSource clients that cannot set headers.
func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// AdminRequired is a middleware that checks for admin role
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetPrincipal(c).Role != models.RoleAdmin {
			response.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the resolved principal, or the zero Principal whose
// empty role authorizes nothing.
func GetPrincipal(c *gin.Context) authz.Principal {
	if v, exists := c.Get(ContextPrincipal); exists {
		if p, ok := v.(authz.Principal); ok {
			return p
		}
	}
	return authz.Principal{}
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

// GetEmail gets the current user's email from context
func GetEmail(c *gin.Context) string {
	if email, exists := c.Get(ContextEmail); exists {
		return email.(string)
	}
	return ""
}
