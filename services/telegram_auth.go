package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// AuthErrorKind is a machine-readable category for authentication failures.
// Every kind surfaces to the client as the same 401 outcome; the kind and
// detail exist for diagnostics.
type AuthErrorKind string

const (
	ErrKindMissingSignature  AuthErrorKind = "missing_signature"
	ErrKindSignatureMismatch AuthErrorKind = "signature_mismatch"
	ErrKindExpired           AuthErrorKind = "expired"
	ErrKindMalformedAuthDate AuthErrorKind = "malformed_auth_date"
	ErrKindMalformedPayload  AuthErrorKind = "malformed_payload"
	ErrKindMissingUser       AuthErrorKind = "missing_user"
	ErrKindMalformedUser     AuthErrorKind = "malformed_user"
	ErrKindMissingTelegramID AuthErrorKind = "missing_telegram_id"
)

// AuthError carries a failure kind plus human-readable detail.
type AuthError struct {
	Kind   AuthErrorKind
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func authErrorf(kind AuthErrorKind, format string, args ...interface{}) *AuthError {
	return &AuthError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// TelegramUser is the identity claim extracted from the initData user field.
// Absent optional fields take the documented defaults.
type TelegramUser struct {
	ID           int64
	FirstName    string // default "User"
	LastName     *string
	Username     *string
	LanguageCode string // default "en", normalized to a BCP-47 tag
	IsPremium    bool
	PhotoURL     *string
}

// InitDataClaim is the full parsed result of a validated initData payload.
type InitDataClaim struct {
	User       TelegramUser
	AuthDate   time.Time
	Hash       string
	StartParam string // deep-link parameter carrying an implicit referral code
	QueryID    string
}

// TelegramAuthService validates Telegram WebApp initData.
//
// The secret key is HMAC-SHA256 of the bot token with "WebAppData" as key,
// computed once at construction. Validation and parsing never touch the
// database and are fully deterministic for a fixed payload and clock.
type TelegramAuthService struct {
	secretKey     []byte
	maxAgeSeconds int64
	now           func() time.Time
}

func NewTelegramAuthService(botToken string, maxAgeSeconds int64) *TelegramAuthService {
	return &TelegramAuthService{
		secretKey:     computeSecretKey(botToken),
		maxAgeSeconds: maxAgeSeconds,
		now:           time.Now,
	}
}

func computeSecretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// parseInitDataPairs decodes the query-escaped key=value payload. Blank
// values are kept; for duplicated keys the last occurrence wins.
func parseInitDataPairs(initData string) (map[string]string, *AuthError) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, authErrorf(ErrKindMalformedPayload, "initData is not a valid query string: %v", err)
	}
	pairs := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			pairs[key] = vals[len(vals)-1]
		}
	}
	return pairs, nil
}

// ValidateInitData checks the payload signature and freshness.
//
// Checks, in order: hash present, hash matches the HMAC over the sorted
// check string, auth_date (when present) within the replay window. A missing
// auth_date skips the freshness check entirely: Telegram always sends one,
// but its absence is tolerated rather than silently treated as expired.
// A payload aged exactly maxAgeSeconds is still accepted.
func (s *TelegramAuthService) ValidateInitData(initData string) *AuthError {
	pairs, authErr := parseInitDataPairs(initData)
	if authErr != nil {
		return authErr
	}

	receivedHash, ok := pairs["hash"]
	if !ok || receivedHash == "" {
		return authErrorf(ErrKindMissingSignature, "missing hash in initData")
	}

	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		if key != "hash" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var checkString strings.Builder
	for i, key := range keys {
		if i > 0 {
			checkString.WriteByte('\n')
		}
		checkString.WriteString(key)
		checkString.WriteByte('=')
		checkString.WriteString(pairs[key])
	}

	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(checkString.String()))
	computedHash := hex.EncodeToString(mac.Sum(nil))

	// hmac.Equal is constant-time
	if !hmac.Equal([]byte(computedHash), []byte(receivedHash)) {
		return authErrorf(ErrKindSignatureMismatch, "invalid hash - data may have been tampered with")
	}

	if authDateStr, ok := pairs["auth_date"]; ok {
		authDate, err := strconv.ParseInt(authDateStr, 10, 64)
		if err != nil {
			return authErrorf(ErrKindMalformedAuthDate, "invalid auth_date format")
		}
		age := s.now().Unix() - authDate
		if age > s.maxAgeSeconds {
			return authErrorf(ErrKindExpired, "initData expired (age: %ds, max: %ds)", age, s.maxAgeSeconds)
		}
	}

	return nil
}

// telegramUserJSON mirrors the user JSON object inside initData. Pointers
// distinguish absent fields from zero values.
type telegramUserJSON struct {
	ID           *int64  `json:"id"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Username     *string `json:"username"`
	LanguageCode *string `json:"language_code"`
	IsPremium    *bool   `json:"is_premium"`
	PhotoURL     *string `json:"photo_url"`
}

// ParseInitData extracts the identity claim from an already-validated
// payload. Parse failures are reported with their own kinds, distinct from
// signature failures, but callers surface both as one authentication-failed
// category.
func (s *TelegramAuthService) ParseInitData(initData string) (*InitDataClaim, *AuthError) {
	pairs, authErr := parseInitDataPairs(initData)
	if authErr != nil {
		return nil, authErr
	}

	userJSON, ok := pairs["user"]
	if !ok || userJSON == "" {
		return nil, authErrorf(ErrKindMissingUser, "missing user field in initData")
	}

	// The user field may arrive double-encoded depending on the client;
	// a second unescape that fails just leaves the value as-is.
	if unescaped, err := url.QueryUnescape(userJSON); err == nil {
		userJSON = unescaped
	}

	var raw telegramUserJSON
	if err := json.Unmarshal([]byte(userJSON), &raw); err != nil {
		if typeErr, ok := err.(*json.UnmarshalTypeError); ok && typeErr.Field == "id" {
			return nil, authErrorf(ErrKindMissingTelegramID, "user id is not an integer")
		}
		return nil, authErrorf(ErrKindMalformedUser, "failed to parse user data from initData: %v", err)
	}
	if raw.ID == nil {
		return nil, authErrorf(ErrKindMissingTelegramID, "missing user id in initData")
	}

	user := TelegramUser{
		ID:           *raw.ID,
		FirstName:    "User",
		LastName:     raw.LastName,
		Username:     raw.Username,
		LanguageCode: "en",
		IsPremium:    false,
		PhotoURL:     raw.PhotoURL,
	}
	if raw.FirstName != nil && *raw.FirstName != "" {
		user.FirstName = *raw.FirstName
	}
	if raw.LanguageCode != nil {
		user.LanguageCode = normalizeLanguageCode(*raw.LanguageCode)
	}
	if raw.IsPremium != nil {
		user.IsPremium = *raw.IsPremium
	}

	var authDate time.Time
	if authDateStr, ok := pairs["auth_date"]; ok {
		unix, err := strconv.ParseInt(authDateStr, 10, 64)
		if err != nil {
			return nil, authErrorf(ErrKindMalformedAuthDate, "invalid auth_date format")
		}
		authDate = time.Unix(unix, 0)
	}

	return &InitDataClaim{
		User:       user,
		AuthDate:   authDate,
		Hash:       pairs["hash"],
		StartParam: pairs["start_param"],
		QueryID:    pairs["query_id"],
	}, nil
}

// ValidateAndParse runs validation then parsing in one call.
func (s *TelegramAuthService) ValidateAndParse(initData string) (*InitDataClaim, *AuthError) {
	if err := s.ValidateInitData(initData); err != nil {
		return nil, err
	}
	return s.ParseInitData(initData)
}

// normalizeLanguageCode maps whatever the client sent onto a canonical
// BCP-47 tag, falling back to "en" for garbage input.
func normalizeLanguageCode(code string) string {
	if code == "" {
		return "en"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "en"
	}
	return tag.String()
}
