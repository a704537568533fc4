package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bidyaasp/project-management/internal/authz"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/internal/utils"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-middleware-testing")
}

type userTable map[uint]*models.User

func (u userTable) GetUserByID(id uint) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, response.NewNotFound("user not found")
}

var testUsers = userTable{
	5: {ID: 5, Email: "x@example.com", Role: models.RoleManager, IsActive: true},
	7: {ID: 7, Email: "dev@example.com", Role: models.RoleDeveloper, IsActive: true},
	9: {ID: 9, Email: "off@example.com", Role: models.RoleDeveloper, IsActive: false},
}

func protectedRouter() *gin.Engine {
	router := gin.New()
	router.Use(AuthRequired(testUsers))
	router.GET("/protected", func(c *gin.Context) {
		p := GetPrincipal(c)
		c.JSON(200, gin.H{"id": p.ID, "role": p.Role, "email": GetEmail(c)})
	})
	return router
}

func TestAuthRequired_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
	}{
		{name: "no header"},
		{name: "no scheme", header: "InvalidToken"},
		{name: "basic auth", header: "Basic token123"},
		{name: "empty bearer", header: "Bearer"},
		{name: "garbage token", header: "Bearer invalid.jwt.token"},
		{name: "garbage query token", query: "?token=nope"},
	}
	router := protectedRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthRequired_UnknownRoleRejected(t *testing.T) {
	token, err := utils.GenerateToken(5, "x@example.com", "superuser", 1)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protectedRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequired_ValidTokenSetsPrincipal(t *testing.T) {
	token, err := utils.GenerateToken(7, "dev@example.com", "developer", 24)
	require.NoError(t, err)

	for _, viaQuery := range []bool{false, true} {
		w := httptest.NewRecorder()
		path := "/protected"
		if viaQuery {
			path += "?token=" + token
		}
		req, _ := http.NewRequest("GET", path, nil)
		if !viaQuery {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		protectedRouter().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			ID    uint   `json:"id"`
			Role  string `json:"role"`
			Email string `json:"email"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, uint(7), body.ID)
		assert.Equal(t, "developer", body.Role)
		assert.Equal(t, "dev@example.com", body.Email)
	}
}

func TestAuthRequired_ChecksStoredUser(t *testing.T) {
	tests := []struct {
		name     string
		id       uint
		role     string
		wantCode int
		wantRole string
	}{
		{"deleted user", 11, "admin", http.StatusUnauthorized, ""},
		{"inactive user", 9, "developer", http.StatusUnauthorized, ""},
		{"stale admin claim", 7, "admin", http.StatusOK, "developer"},
		{"promoted since issue", 5, "developer", http.StatusOK, "manager"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := utils.GenerateToken(tt.id, "u@example.com", tt.role, 1)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			protectedRouter().ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.wantRole != "" {
				var body struct {
					Role string `json:"role"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantRole, body.Role)
			}
		})
	}
}

func TestAdminRequired(t *testing.T) {
	tests := []struct {
		name      string
		principal *authz.Principal
		want      int
	}{
		{"no principal", nil, http.StatusForbidden},
		{"manager", &authz.Principal{ID: 2, Role: models.RoleManager}, http.StatusForbidden},
		{"admin", &authz.Principal{ID: 1, Role: models.RoleAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tt.principal != nil {
					c.Set(ContextPrincipal, *tt.principal)
				}
				c.Next()
			})
			router.Use(AdminRequired())
			router.GET("/admin", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/admin", nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestContextGetters(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Equal(t, uint(0), GetUserID(c))
	assert.Equal(t, "", GetEmail(c))
	assert.Equal(t, authz.Principal{}, GetPrincipal(c))

	c.Set(ContextUserID, uint(42))
	c.Set(ContextEmail, "a@example.com")
	c.Set(ContextPrincipal, authz.Principal{ID: 42, Role: models.RoleAdmin})
	assert.Equal(t, uint(42), GetUserID(c))
	assert.Equal(t, "a@example.com", GetEmail(c))
	assert.Equal(t, models.RoleAdmin, GetPrincipal(c).Role)
}
