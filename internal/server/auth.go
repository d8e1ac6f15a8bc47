package server

import (
	"context"
	"errors"
	"time"

	"soundcheck/internal/middleware"
	"soundcheck/internal/models"

	"github.com/gofiber/fiber/v2"
)

const blacklistPrefix = "blacklist:"

// AuthRequired returns the bearer-token authentication middleware.
func (s *Server) AuthRequired() fiber.Handler {
	return s.authenticate(false)
}

// ConsoleAuthRequired also accepts the access token cookie set at login.
func (s *Server) ConsoleAuthRequired() fiber.Handler {
	return s.authenticate(true)
}

func (s *Server) authenticate(allowCookie bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := middleware.ExtractToken(c, allowCookie)
		if err != nil {
			msg := "Authorization required"
			if errors.Is(err, middleware.ErrInvalidToken) {
				msg = "Invalid authorization header"
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError(msg))
		}

		claims, err := middleware.ParseToken(s.config.JWTSecret, tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		// Check JTI for revocation
		if claims.JTI != "" && s.redis != nil {
			revoked, err := s.redis.Exists(c.UserContext(), blacklistPrefix+claims.JTI).Result()
			if err == nil && revoked > 0 {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token has been revoked"))
			}
		}

		c.Locals("userID", claims.UserID)
		c.Locals("tokenClaims", claims)
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, claims.UserID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
// The loaded user is kept in locals as the acting admin.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uint)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		user, err := s.userRepo.GetByID(c.UserContext(), userID)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Unknown user"))
			}
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !user.IsAdmin() || user.IsBlocked {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// actingAdmin returns the admin loaded by AdminRequired.
func actingAdmin(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}

// revokeToken blacklists a token id until the token would have expired anyway.
func (s *Server) revokeToken(ctx context.Context, claims middleware.TokenClaims) error {
	if s.redis == nil || claims.JTI == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, blacklistPrefix+claims.JTI, "1", ttl).Err()
}
