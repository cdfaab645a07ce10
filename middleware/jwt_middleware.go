package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"mailfinder/utils"
)

// Protected requires a valid client token and stores the client id in
// c.Locals("clientID").
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization format",
				})
			}
			token = tokenParts[1]
		} else {
			// Browsers cannot set headers on a websocket upgrade
			token = c.Cookies("access_token")
			if token == "" {
				token = c.Query("access_token")
			}
			if token == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Authorization required",
				})
			}
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("clientID", claims.ClientID)
		return c.Next()
	}
}

// ClientID returns the authenticated client, or "" outside Protected.
func ClientID(c *fiber.Ctx) string {
	id, _ := c.Locals("clientID").(string)
	return id
}
