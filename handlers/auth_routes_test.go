package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"wattstap-referral-service/models"
	"wattstap-referral-service/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testBotToken = "123456:TEST-BOT-TOKEN"

// signInitData forges a correctly signed initData payload, the way the
// Telegram client would produce it.
func signInitData(botToken string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+fields[key])
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(parts, "\n")))

	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func forgeInitData(telegramID int64, username, startParam string) string {
	user, _ := json.Marshal(map[string]interface{}{
		"id":         telegramID,
		"first_name": "Test",
		"username":   username,
	})
	fields := map[string]string{
		"user":      string(user),
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if startParam != "" {
		fields["start_param"] = startParam
	}
	return signInitData(testBotToken, fields)
}

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Friendship{}))

	telegram := services.NewTelegramAuthService(testBotToken, 86400)
	users := services.NewUserService(db, 1000, 8)
	referral := services.NewReferralService(db, 5000)
	tokens := services.NewTokenService("test-jwt-secret", 86400)
	authService := services.NewAuthService(db, telegram, users, referral, tokens)

	app := fiber.New()
	SetupAuthRoutes(app, authService, false)
	SetupSocialRoutes(app, db, tokens, referral, "WattsTapBot", false)
	SetupDevRoutes(app, db)
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func authenticateHTTP(t *testing.T, app *fiber.App, telegramID int64, username, startParam, code string) map[string]interface{} {
	t.Helper()
	body := fiber.Map{"initData": forgeInitData(telegramID, username, startParam)}
	if code != "" {
		body["referralCode"] = code
	}
	resp, decoded := doJSON(t, app, "POST", "/auth/telegram", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, "auth failed: %v", decoded)
	return decoded
}

func TestAuthTelegram_NewPlayer(t *testing.T) {
	app, _ := newTestApp(t)

	decoded := authenticateHTTP(t, app, 111111111, "newbie", "", "")

	assert.NotEmpty(t, decoded["token"])
	assert.Equal(t, float64(86400), decoded["expiresIn"])

	player := decoded["player"].(map[string]interface{})
	assert.Equal(t, true, player["isNewPlayer"])
	assert.Equal(t, float64(1), player["level"])
	assert.Equal(t, "newbie", player["nickname"])
	assert.NotEmpty(t, player["referralCode"])

	referral := decoded["referral"].(map[string]interface{})
	assert.Equal(t, false, referral["applied"])
}

func TestAuthTelegram_SnakeCaseAliases(t *testing.T) {
	app, _ := newTestApp(t)

	resp, decoded := doJSON(t, app, "POST", "/auth/telegram", "", fiber.Map{
		"init_data": forgeInitData(123, "aliased", ""),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "auth failed: %v", decoded)
	assert.NotEmpty(t, decoded["token"])
}

func TestAuthTelegram_CorruptedHash(t *testing.T) {
	app, db := newTestApp(t)

	initData := forgeInitData(222, "victim", "")
	corrupted := initData[:len(initData)-4] + "beef"

	resp, decoded := doJSON(t, app, "POST", "/auth/telegram", "", fiber.Map{"initData": corrupted})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, decoded["error"], "Authentication failed")

	// No account side effects on a rejected payload.
	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAuthTelegram_BadRequests(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, "POST", "/auth/telegram", "", fiber.Map{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/auth/telegram", "", fiber.Map{
		"initData":     forgeInitData(1, "u", ""),
		"referralCode": "THISCODEISWAYTOOLONG",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReferralFlowOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	referrerResp := authenticateHTTP(t, app, 1000, "referrer", "", "")
	referrerToken := referrerResp["token"].(string)
	code := referrerResp["player"].(map[string]interface{})["referralCode"].(string)

	invitedResp := authenticateHTTP(t, app, 2000, "invited", "REF_"+code, "")
	referral := invitedResp["referral"].(map[string]interface{})
	require.Equal(t, true, referral["applied"])
	assert.Equal(t, float64(5000), referral["bonusForReferrer"])
	referrer := referral["referrer"].(map[string]interface{})
	assert.Equal(t, float64(1000), referrer["userId"])

	// Referrer's stats reflect the credit.
	resp, myReferral := doJSON(t, app, "GET", "/social/my-referral", referrerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, code, myReferral["referralCode"])
	assert.Equal(t, fmt.Sprintf("https://t.me/WattsTapBot?startattach=REF_%s", code), myReferral["inviteLink"])
	assert.Equal(t, float64(1), myReferral["totalFriendsInvited"])
	assert.Equal(t, float64(5000), myReferral["totalBonusEarned"])

	// Friends list: the referrer earns from the invitee, not vice versa.
	resp, friends := doJSON(t, app, "GET", "/social/friends", referrerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := friends["friends"].([]interface{})
	require.Len(t, list, 1)
	entry := list[0].(map[string]interface{})
	assert.Equal(t, "invited", entry["nickname"])
	assert.Equal(t, float64(5000), entry["yourBonus"])
	assert.Equal(t, float64(5000), friends["totalBonusEarned"])

	invitedToken := invitedResp["token"].(string)
	resp, invitedFriends := doJSON(t, app, "GET", "/social/friends", invitedToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	invitedList := invitedFriends["friends"].([]interface{})
	require.Len(t, invitedList, 1)
	assert.Equal(t, float64(0), invitedList[0].(map[string]interface{})["yourBonus"])
}

func TestSocialRoutes_RequireAuth(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, "GET", "/social/my-referral", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, app, "GET", "/social/friends", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDevResetAll(t *testing.T) {
	app, db := newTestApp(t)

	authenticateHTTP(t, app, 1000, "a", "", "")
	authenticateHTTP(t, app, 2000, "b", "", "")

	resp, decoded := doJSON(t, app, "DELETE", "/dev/reset-all", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decoded["status"])

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDevResetUser(t *testing.T) {
	app, db := newTestApp(t)

	referrerResp := authenticateHTTP(t, app, 1000, "referrer", "", "")
	code := referrerResp["player"].(map[string]interface{})["referralCode"].(string)
	authenticateHTTP(t, app, 2000, "invited", "REF_"+code, "")

	resp, _ := doJSON(t, app, "DELETE", "/dev/reset-user/2000", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var users, edges int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Friendship{}).Count(&edges).Error)
	assert.Equal(t, int64(1), users)
	assert.Zero(t, edges)

	resp, _ = doJSON(t, app, "DELETE", "/dev/reset-user/2000", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
