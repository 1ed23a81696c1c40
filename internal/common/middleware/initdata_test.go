package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const testBotToken = "12345:test-token"

// signInitData signs values the way Telegram signs mini app init data.
func signInitData(token string, values url.Values) string {
	pairs := make([]string, 0, len(values))
	for k := range values {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(token))
	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(pairs, "\n")))
	values.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return values.Encode()
}

func initDataFor(userID int64, authDate time.Time) url.Values {
	return url.Values{
		"auth_date": {strconv.FormatInt(authDate.Unix(), 10)},
		"query_id":  {"AAH"},
		"user":      {`{"id":` + strconv.FormatInt(userID, 10) + `,"first_name":"Ann"}`},
	}
}

func TestTelegramInitData(t *testing.T) {
	r := newRouter(TelegramInitData(testBotToken, 20*time.Minute), func(c *gin.Context) {
		id, ok := InitDataUserID(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, strconv.FormatInt(id, 10))
	})

	w := do(r, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	w = do(r, map[string]string{"init_data": signInitData(testBotToken, initDataFor(42, time.Now()))})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = do(r, map[string]string{"init_data": signInitData("other:token", initDataFor(42, time.Now()))})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	w = do(r, map[string]string{"init_data": signInitData(testBotToken, initDataFor(42, time.Now().Add(-time.Hour)))})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "expired init data")
}
