package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
)

func setupRouter(validator middleware.TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", middleware.AuthMiddleware(validator), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt64(middleware.UserIDKey)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		setup    func(*mocks.TokenValidatorMock)
		wantCode int
		wantBody string
	}{
		{
			name:   "valid token",
			header: "Bearer good",
			setup: func(m *mocks.TokenValidatorMock) {
				m.On("ValidateToken", mock.Anything, "good").Return(int64(9), nil).Once()
			},
			wantCode: http.StatusOK,
			wantBody: `{"user_id":9}`,
		},
		{
			name:     "missing header",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong scheme",
			header:   "Basic abc",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:   "rejected token",
			header: "bearer bad",
			setup: func(m *mocks.TokenValidatorMock) {
				m.On("ValidateToken", mock.Anything, "bad").Return(int64(0), errors.New("expired")).Once()
			},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := new(mocks.TokenValidatorMock)
			if tt.setup != nil {
				tt.setup(validator)
			}
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			setupRouter(validator).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			validator.AssertExpectations(t)
		})
	}
}
