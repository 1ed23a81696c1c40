package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/open-builders/giveaway-engine/internal/common/errors"
)

const initDataUserKey = "init_data_user"

// TelegramInitData validates the init_data header sent by the mini app
// against the bot token and stores the Telegram user on the context. Requests
// without the header pass through; a zero expIn disables the expiry check.
func TelegramInitData(botToken string, expIn time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("init_data")
		if raw == "" {
			c.Next()
			return
		}

		if err := initdata.Validate(raw, botToken, expIn); err != nil {
			sendErrorResponse(c, errors.Wrap(err, errors.ErrCodeUnauthorized, "Unauthorized: invalid init data"))
			return
		}
		parsed, err := initdata.Parse(raw)
		if err != nil {
			sendErrorResponse(c, errors.Wrap(err, errors.ErrCodeValidation, "Failed to parse init data"))
			return
		}

		c.Set(initDataUserKey, parsed.User)
		c.Next()
	}
}

// InitDataUserID returns the id of the user authenticated by TelegramInitData.
func InitDataUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(initDataUserKey)
	if !ok {
		return 0, false
	}
	user, ok := v.(initdata.User)
	if !ok || user.ID == 0 {
		return 0, false
	}
	return user.ID, true
}
