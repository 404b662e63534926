package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGetPaginationParamsClamps(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=0&limit=500&order=sideways", nil)

	params := GetPaginationParams(c)
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, 20, params.Limit)
	assert.Equal(t, "desc", params.Order)
	assert.Equal(t, "created_at", params.Sort)

	result := CreatePaginationResult(nil, 41, params)
	assert.Equal(t, 3, result.TotalPages)
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("utils-test-secret")
	userID := uuid.New()

	tok, err := GenerateJWT(userID, RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)

	expired, err := GenerateJWT(userID, RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)

	SetJWTSecret("rotated")
	_, err = ValidateJWT(tok)
	assert.Error(t, err)
}

func TestValidateJWTRejectsForeignSubject(t *testing.T) {
	SetJWTSecret("utils-test-secret")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		UserID:           "42",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("utils-test-secret"))
	require.NoError(t, err)

	_, err = ValidateJWT(tok)
	assert.Error(t, err)
}

func TestGetValidationErrors(t *testing.T) {
	type request struct {
		QuestionID string `json:"questionId" validate:"required,uuid"`
		AnswerID   string `validate:"required"`
	}

	errs := GetValidationErrors(ValidateStruct(&request{QuestionID: "nope"}))
	require.Len(t, errs, 2)
	assert.Equal(t, "questionId", errs[0].Field)
	assert.Equal(t, "uuid", errs[0].Tag)
	assert.Equal(t, "questionId must be a UUID", errs[0].Message)
	assert.Equal(t, "AnswerID", errs[1].Field)
	assert.Equal(t, "required", errs[1].Tag)

	assert.Empty(t, GetValidationErrors(nil))
}

func TestCheckCronSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("tick"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckCronSecret(string(hash), "tick"))
	assert.False(t, CheckCronSecret(string(hash), "tock"))
	assert.False(t, CheckCronSecret("", "tick"))
	assert.False(t, CheckCronSecret(string(hash), ""))
}
