package server

import (
	"soundcheck/internal/models"
	"soundcheck/internal/service"
	"soundcheck/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// authorRequestResponse is the success body of an author application.
type authorRequestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID uint   `json:"requestId"`
}

// SubmitAuthorRequest handles POST /api/registration/author-request
// @Summary Apply to become an author
// @Description Files an author registration request for admin review. Every validation or duplicate failure is reported as 400.
// @Tags registration
// @Accept json
// @Produce json
// @Param request body validation.AuthorRequest true "Author application"
// @Success 200 {object} authorRequestResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 429 {object} object{error=string}
// @Router /registration/author-request [post]
func (s *Server) SubmitAuthorRequest(c *fiber.Ctx) error {
	var req validation.AuthorRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(validation.Message(err)))
	}

	created, err := s.registrationService.Submit(c.UserContext(), service.SubmitInput{
		Email:      req.Email,
		Username:   req.Username,
		Password:   req.Password,
		AuthorName: req.AuthorName,
	})
	if err != nil {
		status := statusForError(err)
		// Client-side failures of the public form are all reported as 400.
		if status < fiber.StatusInternalServerError {
			status = fiber.StatusBadRequest
		}
		return models.RespondWithError(c, status, err)
	}

	return c.JSON(authorRequestResponse{
		Success:   true,
		Message:   "Your application has been received and is awaiting review.",
		RequestID: created.ID,
	})
}
