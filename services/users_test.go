package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUserService_CreateUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, 1000, 8)

	user, err := svc.CreateUser(db, &TelegramUser{
		ID:           123456789,
		FirstName:    "Test",
		Username:     strPtr("testuser"),
		LanguageCode: "en",
	})
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.Equal(t, int64(123456789), user.TelegramID)
	assert.Equal(t, int64(1), user.Level)
	assert.Equal(t, int64(1000), user.Watts)
	assert.Len(t, user.ReferralCode, 8)
	assert.Nil(t, user.ReferredByID)
	assert.False(t, user.LastLoginAt.IsZero())
}

func TestUserService_GetByTelegramID_Absent(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, 1000, 8)

	user, err := svc.GetByTelegramID(db, 42)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserService_GetByReferralCode_Normalization(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, 1000, 8)

	created, err := svc.CreateUser(db, &TelegramUser{ID: 1, FirstName: "A", LanguageCode: "en"})
	require.NoError(t, err)
	code := created.ReferralCode

	tests := []struct {
		name  string
		input string
		found bool
	}{
		{name: "bare code", input: code, found: true},
		{name: "REF_ prefix stripped", input: "REF_" + code, found: true},
		{name: "lowercase uppercased", input: "ref_" + code, found: false}, // literal prefix only
		{name: "unknown code", input: "REF_WXYZ2345", found: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			user, err := svc.GetByReferralCode(db, test.input)
			require.NoError(t, err)
			if test.found {
				require.NotNil(t, user)
				assert.Equal(t, created.ID, user.ID)
			} else {
				assert.Nil(t, user)
			}
		})
	}
}

func TestUserService_UpdateLastLogin(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, 1000, 8)

	user, err := svc.CreateUser(db, &TelegramUser{ID: 1, FirstName: "A", LanguageCode: "en"})
	require.NoError(t, err)

	before := user.LastLoginAt
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, svc.UpdateLastLogin(db, user))

	reloaded, err := svc.GetByTelegramID(db, 1)
	require.NoError(t, err)
	assert.True(t, reloaded.LastLoginAt.After(before))
}

func TestUserService_AddWatts(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, 1000, 8)

	user, err := svc.CreateUser(db, &TelegramUser{ID: 9, FirstName: "A", LanguageCode: "en"})
	require.NoError(t, err)

	require.NoError(t, svc.AddWatts(db, user, 5000))
	assert.Equal(t, int64(6000), user.Watts)

	reloaded, err := svc.GetByTelegramID(db, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), reloaded.Watts)
}

func TestUserService_ProfileNotOverwrittenOnLogin(t *testing.T) {
	svc, _ := newTestAuthService(t)

	authenticateAs(t, svc, 777, "", "")
	original := loadUser(t, svc, 777)

	// Same identity, different profile payload: only last_login moves.
	fields := testInitDataFields(777, "")
	fields["user"] = `{"id": 777, "first_name": "Changed", "username": "changeduser"}`
	resp, err := svc.Authenticate(signInitData(testBotToken, fields), "")
	require.NoError(t, err)
	assert.False(t, resp.Player.IsNewPlayer)

	reloaded := loadUser(t, svc, 777)
	assert.Equal(t, original.FirstName, reloaded.FirstName)
	assert.Equal(t, original.Username, reloaded.Username)
	assert.Equal(t, original.ReferralCode, reloaded.ReferralCode)
}
