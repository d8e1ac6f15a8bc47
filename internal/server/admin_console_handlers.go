package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"soundcheck/internal/middleware"
	"soundcheck/internal/models"
	"soundcheck/internal/repository"

	"github.com/gofiber/fiber/v2"
)

const (
	consolePath     = "/admin/registration-requests"
	consoleTimeFmt  = "2006-01-02 15:04 UTC"
	flashKey        = "flash"
	flashKindKey    = "flash_kind"
	flashKindOK     = "success"
	flashKindFailed = "error"
)

// consoleRow is a registration request flattened for the console template.
type consoleRow struct {
	ID           uint
	Email        string
	Username     string
	AuthorName   string
	Status       string
	Pending      bool
	CreatedAt    string
	ProcessedAt  string
	AdminComment string
	AdminEmail   string
}

func toConsoleRow(r models.RegistrationRequest) consoleRow {
	row := consoleRow{
		ID:         r.ID,
		Email:      r.Email,
		Username:   r.Username,
		AuthorName: r.AuthorName,
		Status:     string(r.Status),
		Pending:    r.Status == models.RegistrationStatusPending,
		CreatedAt:  r.CreatedAt.UTC().Format(consoleTimeFmt),
	}
	if r.ProcessedAt != nil {
		row.ProcessedAt = r.ProcessedAt.UTC().Format(consoleTimeFmt)
	}
	if r.AdminComment != nil {
		row.AdminComment = *r.AdminComment
	}
	if r.AdminEmail != nil {
		row.AdminEmail = *r.AdminEmail
	}
	return row
}

// consoleURL builds the list URL for a status filter and page.
func consoleURL(status string, page int) string {
	return consolePath + consoleQuery(status, page)
}

// ConsoleRegistrationRequests handles GET /admin/registration-requests, the
// HTML review queue.
func (s *Server) ConsoleRegistrationRequests(c *fiber.Ctx) error {
	ctx := c.UserContext()
	filter := c.Query("status")
	status, err := parseStatus(filter)
	if err != nil {
		s.setFlash(c, flashKindFailed, err.Error())
		return c.Redirect(consolePath, fiber.StatusSeeOther)
	}
	if status == nil {
		filter = ""
	}
	p := parsePage(c)

	page, err := s.registrationService.List(ctx, repository.RegistrationFilter{Status: status, Page: p.Page, Size: p.Size})
	if err != nil {
		return respondError(c, err)
	}
	stats, err := s.registrationService.Stats(ctx)
	if err != nil {
		return respondError(c, err)
	}

	rows := make([]consoleRow, 0, len(page.Requests))
	for _, r := range page.Requests {
		rows = append(rows, toConsoleRow(r))
	}

	data := fiber.Map{
		"Rows":       rows,
		"Stats":      stats,
		"Status":     filter,
		"Page":       page.Page,
		"TotalPages": page.TotalPages,
		"Total":      page.Total,
		"Query":      consoleQuery(filter, page.Page),
		"Filters": []fiber.Map{
			{"Label": "All", "URL": consoleURL("", 1), "Active": filter == ""},
			{"Label": "Pending", "URL": consoleURL("pending", 1), "Active": filter == "pending"},
			{"Label": "Approved", "URL": consoleURL("approved", 1), "Active": filter == "approved"},
			{"Label": "Rejected", "URL": consoleURL("rejected", 1), "Active": filter == "rejected"},
		},
	}
	if page.Page > 1 {
		data["PrevURL"] = consoleURL(filter, page.Page-1)
	}
	if page.Page < page.TotalPages {
		data["NextURL"] = consoleURL(filter, page.Page+1)
	}
	if admin := actingAdmin(c); admin != nil {
		data["Admin"] = admin.Username
	}
	if kind, msg := s.popFlash(c); msg != "" {
		data["Flash"] = fiber.Map{"Kind": kind, "Message": msg}
	}

	return c.Render("registration_requests", data)
}

// ConsoleApprove handles POST /admin/registration-requests/:id/approve.
func (s *Server) ConsoleApprove(c *fiber.Ctx) error {
	return s.consoleReview(c, models.RegistrationStatusApproved)
}

// ConsoleReject handles POST /admin/registration-requests/:id/reject. A
// missing comment leaves the request untouched and flashes an error.
func (s *Server) ConsoleReject(c *fiber.Ctx) error {
	return s.consoleReview(c, models.RegistrationStatusRejected)
}

func (s *Server) consoleReview(c *fiber.Ctx, decision models.RegistrationStatus) error {
	back := consoleURL(c.Query("status"), c.QueryInt("page", 1))

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		s.setFlash(c, flashKindFailed, "Invalid request ID")
		return c.Redirect(back, fiber.StatusSeeOther)
	}

	comment := c.FormValue("adminComment")
	admin := actingAdmin(c)

	if decision == models.RegistrationStatusApproved {
		_, err = s.registrationService.Approve(c.UserContext(), uint(id), comment, admin.Email)
	} else {
		_, err = s.registrationService.Reject(c.UserContext(), uint(id), comment, admin.Email)
	}

	if err != nil {
		s.setFlash(c, flashKindFailed, s.flashMessage(c, err))
	} else {
		s.setFlash(c, flashKindOK, fmt.Sprintf("Registration request #%d %s.", id, decision))
	}
	return c.Redirect(back, fiber.StatusSeeOther)
}

func (s *Server) flashMessage(c *fiber.Ctx, err error) string {
	if statusForError(err) >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "console review failed", slog.String("error", err.Error()))
		return "Something went wrong, please try again."
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (s *Server) setFlash(c *fiber.Ctx, kind, message string) {
	sess, err := s.sessions.Get(c)
	if err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "session unavailable", slog.String("error", err.Error()))
		return
	}
	sess.Set(flashKindKey, kind)
	sess.Set(flashKey, message)
	if err := sess.Save(); err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "session save failed", slog.String("error", err.Error()))
	}
}

func (s *Server) popFlash(c *fiber.Ctx) (string, string) {
	sess, err := s.sessions.Get(c)
	if err != nil {
		return "", ""
	}
	msg, _ := sess.Get(flashKey).(string)
	if msg == "" {
		return "", ""
	}
	kind, _ := sess.Get(flashKindKey).(string)
	sess.Delete(flashKey)
	sess.Delete(flashKindKey)
	_ = sess.Save()
	return kind, msg
}

// consoleQuery is the query string review forms post back with, so the
// redirect lands on the same filter and page.
func consoleQuery(status string, page int) string {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
