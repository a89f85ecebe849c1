package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrInitDataMissing = errors.New("init data missing")
	ErrInitDataInvalid = errors.New("init data signature mismatch")
	ErrInitDataExpired = errors.New("init data expired")
)

const localUserID = "user_id"

type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type InitData struct {
	User       WebAppUser
	AuthDate   time.Time
	StartParam string
}

// ReferrerID extracts the inviter from a "ref_<id>" start parameter.
func (d *InitData) ReferrerID() *int64 {
	raw, ok := strings.CutPrefix(d.StartParam, "ref_")
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func webAppSecret(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// SignInitData computes the hash Telegram attaches to Mini App init data.
func SignInitData(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, webAppSecret(botToken))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

func ParseInitData(raw, botToken string, ttl time.Duration, now time.Time) (*InitData, error) {
	if raw == "" {
		return nil, ErrInitDataMissing
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitDataInvalid, err)
	}

	got, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(got) == 0 {
		return nil, ErrInitDataInvalid
	}
	want, _ := hex.DecodeString(SignInitData(values, botToken))
	if !hmac.Equal(got, want) {
		return nil, ErrInitDataInvalid
	}

	authUnix, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad auth_date", ErrInitDataInvalid)
	}
	authDate := time.Unix(authUnix, 0)
	if ttl > 0 && now.Sub(authDate) > ttl {
		return nil, ErrInitDataExpired
	}

	var user WebAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: bad user", ErrInitDataInvalid)
	}

	return &InitData{User: user, AuthDate: authDate, StartParam: values.Get("start_param")}, nil
}

func initDataFromRequest(c *fiber.Ctx) string {
	if raw := c.Get("X-Telegram-Init-Data"); raw != "" {
		return raw
	}
	if raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "tma "); ok {
		return raw
	}
	return ""
}

// Protected authenticates the Mini App caller and creates the account on first contact.
func (s *Server) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, err := ParseInitData(initDataFromRequest(c), s.botToken, s.initDataTTL, s.now())
		if err != nil {
			s.logger.Debugf("Rejected init data from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "code": "unauthorized"})
		}

		if _, err := s.svc.EnsureUser(c.UserContext(), data.User.ID, data.User.Username, data.ReferrerID()); err != nil {
			return s.fail(c, "ensure user", data.User.ID, err)
		}

		c.Locals(localUserID, data.User.ID)
		return c.Next()
	}
}

func userID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(localUserID).(int64)
	return id
}
