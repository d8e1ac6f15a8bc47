package server

import (
	"soundcheck/internal/models"
	"soundcheck/internal/repository"
	"soundcheck/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// ListRegistrationRequests handles GET /api/admin/registration-requests
// @Summary List registration requests
// @Description Newest first, optionally filtered by status.
// @Tags admin-registration
// @Produce json
// @Param status query string false "pending, approved, rejected or all"
// @Param page query int false "1-based page" default(1)
// @Param size query int false "Page size (max 100)" default(20)
// @Success 200 {object} models.RegistrationRequestPage
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /admin/registration-requests [get]
func (s *Server) ListRegistrationRequests(c *fiber.Ctx) error {
	status, err := parseStatus(c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	p := parsePage(c)

	page, err := s.registrationService.List(c.UserContext(), repository.RegistrationFilter{
		Status: status,
		Page:   p.Page,
		Size:   p.Size,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// GetRegistrationStats handles GET /api/admin/registration-requests/stats
// @Summary Registration request counts
// @Tags admin-registration
// @Produce json
// @Success 200 {object} models.RegistrationStats
// @Security BearerAuth
// @Router /admin/registration-requests/stats [get]
func (s *Server) GetRegistrationStats(c *fiber.Ctx) error {
	stats, err := s.registrationService.Stats(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// GetRegistrationRequest handles GET /api/admin/registration-requests/:id
// @Summary Get a registration request
// @Tags admin-registration
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} models.RegistrationRequest
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /admin/registration-requests/{id} [get]
func (s *Server) GetRegistrationRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.registrationService.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// ApproveRegistrationRequest handles POST /api/admin/registration-requests/:id/approve
// @Summary Approve a registration request
// @Description Creates the author account. The comment is optional.
// @Tags admin-registration
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param request body validation.Review false "Review"
// @Success 200 {object} models.RegistrationRequest
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /admin/registration-requests/{id}/approve [post]
func (s *Server) ApproveRegistrationRequest(c *fiber.Ctx) error {
	return s.reviewRegistrationRequest(c, models.RegistrationStatusApproved)
}

// RejectRegistrationRequest handles POST /api/admin/registration-requests/:id/reject
// @Summary Reject a registration request
// @Description The comment is required and is mailed to the applicant.
// @Tags admin-registration
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param request body validation.Review true "Review"
// @Success 200 {object} models.RegistrationRequest
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /admin/registration-requests/{id}/reject [post]
func (s *Server) RejectRegistrationRequest(c *fiber.Ctx) error {
	return s.reviewRegistrationRequest(c, models.RegistrationStatusRejected)
}

func (s *Server) reviewRegistrationRequest(c *fiber.Ctx, decision models.RegistrationStatus) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var review validation.Review
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&review); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}

	admin := actingAdmin(c)
	var req *models.RegistrationRequest
	if decision == models.RegistrationStatusApproved {
		req, err = s.registrationService.Approve(c.UserContext(), id, review.AdminComment, admin.Email)
	} else {
		req, err = s.registrationService.Reject(c.UserContext(), id, review.AdminComment, admin.Email)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}
