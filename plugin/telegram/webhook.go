package telegram

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SecretTokenHeader carries the secret registered with SetWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxWebhookBody = 1 << 20

// WebhookHandler returns an echo handler that decodes updates pushed by
// Telegram and passes them to handle. Requests without the expected secret
// are rejected when secret is set.
func WebhookHandler(secret string, handle func(Update)) echo.HandlerFunc {
	return func(c echo.Context) error {
		if secret != "" {
			got := c.Request().Header.Get(SecretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid secret token"})
			}
		}

		var u Update
		if err := json.NewDecoder(io.LimitReader(c.Request().Body, maxWebhookBody)).Decode(&u); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid update"})
		}
		handle(u)
		return c.NoContent(http.StatusOK)
	}
}
