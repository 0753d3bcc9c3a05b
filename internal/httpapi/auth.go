package httpapi

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// claims is the single-operator bearer token payload: just the one
// identity this transport needs to guard tool calls.
type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// authHandler issues and validates bearer tokens for the single
// configured operator credential. It is only wired in when
// cfg.AuthEnabled() is true.
type authHandler struct {
	cfg          Config
	passwordHash string
}

func newAuthHandler(cfg Config) *authHandler {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPass), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("httpapi: failed to hash operator password", "err", err)
	}
	return &authHandler{cfg: cfg, passwordHash: string(hash)}
}

func (h *authHandler) login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": true, "message": "Invalid request body"})
	}

	if req.Username != h.cfg.AdminUser {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": true, "message": "Invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": true, "message": "Invalid credentials"})
	}

	token, err := h.generateToken(req.Username)
	if err != nil {
		slog.Error("httpapi: failed to generate token", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": true, "message": "Failed to generate token"})
	}

	return c.JSON(fiber.Map{"access_token": token, "token_type": "Bearer"})
}

func (h *authHandler) generateToken(username string) (string, error) {
	c := &claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(h.cfg.TokenSecret))
}

// jwtProtected rejects requests without a valid bearer token.
func jwtProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": true, "message": "Missing authorization header"})
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if tokenStr == auth {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": true, "message": "Invalid authorization format"})
		}

		parsed := &claims{}
		token, err := jwt.ParseWithClaims(tokenStr, parsed, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": true, "message": "Invalid or expired token"})
		}

		c.Locals("username", parsed.Username)
		return c.Next()
	}
}
