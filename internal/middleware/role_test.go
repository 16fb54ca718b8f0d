package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/windrig/backend/internal/auth"
	"github.com/windrig/backend/internal/models"
)

func roleRouter(role string, withClaims bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if withClaims {
		r.Use(func(c *gin.Context) {
			c.Set(auth.ContextOperatorRole, role)
			c.Next()
		})
	}
	r.POST("/operators", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		role       string
		withClaims bool
		want       int
	}{
		{"admin passes", models.RoleAdmin, true, http.StatusOK},
		{"operator forbidden", models.RoleOperator, true, http.StatusForbidden},
		{"missing claims unauthorized", "", false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := roleRouter(tt.role, tt.withClaims)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/operators", nil))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
