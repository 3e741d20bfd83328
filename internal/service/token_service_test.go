package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "timetable-api", AccessTTL: time.Hour})

	token, expiresAt, err := svc.Issue("ops", models.RoleScheduler)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.UserID)
	assert.Equal(t, models.RoleScheduler, claims.Role)
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "timetable-api"})
	other := NewTokenService(TokenConfig{Secret: "other", Issuer: "timetable-api"})
	foreignIssuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "elsewhere"})

	token, _, err := other.Issue("ops", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(err))

	token, _, err = foreignIssuer.Issue("ops", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(err))

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestTokenServiceExpiredToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", AccessTTL: time.Minute})
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := svc.Issue("ops", models.RoleViewer)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(err))
}

func TestTokenServiceIssueValidation(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})
	_, _, err := svc.Issue("", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
	_, _, err = svc.Issue("ops", models.UserRole("ROOT"))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}
