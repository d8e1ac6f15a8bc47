package server

import (
	"time"

	"soundcheck/internal/middleware"
	"soundcheck/internal/models"
	"soundcheck/internal/service"
	"soundcheck/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// tokenResponse is returned by every endpoint that issues an access token.
type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new reader account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body validation.Signup true "Signup request"
// @Success 201 {object} tokenResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req validation.Signup
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(validation.Message(err)))
	}

	user, err := s.userService.Signup(c.UserContext(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}

	return s.issueSession(c, fiber.StatusCreated, user)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate by email or username and return a JWT. The token is also set as an HttpOnly cookie for the admin console.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{login=string,password=string} true "Login credentials"
// @Success 200 {object} tokenResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Login    string `json:"login" form:"login"`
		Email    string `json:"email" form:"email"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	identifier := req.Login
	if identifier == "" {
		identifier = req.Email
	}

	user, err := s.userService.Login(c.UserContext(), identifier, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	return s.issueSession(c, fiber.StatusOK, user)
}

// Refresh handles POST /api/auth/refresh
// @Summary Refresh access token
// @Description Revoke the presented token and issue a new one
// @Tags auth
// @Produce json
// @Success 200 {object} tokenResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	claims, _ := c.Locals("tokenClaims").(middleware.TokenClaims)

	user, err := s.userRepo.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Unknown user"))
	}
	if user.IsBlocked {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("account is blocked"))
	}

	if err := s.revokeToken(c.UserContext(), claims); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return s.issueSession(c, fiber.StatusOK, user)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the presented token and clear the console cookie
// @Tags auth
// @Produce json
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("tokenClaims").(middleware.TokenClaims)
	if err := s.revokeToken(c.UserContext(), claims); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// GetMyProfile handles GET /api/users/me
// @Summary Current user
// @Description Returns the authenticated user, including the author profile for authors
// @Tags users
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /users/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	user, err := s.userService.GetProfile(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

func (s *Server) issueSession(c *fiber.Ctx, status int, user *models.User) error {
	token, claims, err := middleware.IssueToken(s.config.JWTSecret, user.ID, s.config.TokenTTL(), time.Now())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt,
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	return c.Status(status).JSON(tokenResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		User:      user,
	})
}
