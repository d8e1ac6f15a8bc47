package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"soundcheck/internal/cache"
	"soundcheck/internal/middleware"
	"soundcheck/internal/models"
	"soundcheck/internal/notifications"
	"soundcheck/internal/observability"
	"soundcheck/internal/repository"
	"soundcheck/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// EventPublisher pushes realtime events to connected admins.
type EventPublisher interface {
	PublishAdminEvent(ctx context.Context, eventType string, payload map[string]any)
}

// RegistrationConfig carries the notification settings of the workflow.
type RegistrationConfig struct {
	AdminRecipients []string
	BaseURL         string
	MailTimeout     time.Duration
}

// SubmitInput is an author application as received from the public form.
type SubmitInput struct {
	Email      string
	Username   string
	Password   string
	AuthorName string
}

// RegistrationService runs the author registration workflow: submission,
// admin review and account creation on approval.
type RegistrationService struct {
	db       *gorm.DB
	requests repository.RegistrationRequestRepository
	users    repository.UserRepository
	authors  repository.AuthorRepository
	mailer   notifications.Mailer
	events   EventPublisher
	cfg      RegistrationConfig

	now        func() time.Time
	bcryptCost int
}

// NewRegistrationService returns a new RegistrationService.
func NewRegistrationService(
	db *gorm.DB,
	requests repository.RegistrationRequestRepository,
	users repository.UserRepository,
	authors repository.AuthorRepository,
	mailer notifications.Mailer,
	events EventPublisher,
	cfg RegistrationConfig,
) *RegistrationService {
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}
	return &RegistrationService{
		db:         db,
		requests:   requests,
		users:      users,
		authors:    authors,
		mailer:     mailer,
		events:     events,
		cfg:        cfg,
		now:        time.Now,
		bcryptCost: defaultBcryptCost,
	}
}

// Submit records a new pending application after checking that neither the
// email nor the username is taken and no pending request exists for the email.
func (s *RegistrationService) Submit(ctx context.Context, in SubmitInput) (*models.RegistrationRequest, error) {
	span, ctx := observability.StartSpan(ctx, "registration.submit")
	defer span.End()

	req, err := s.submit(ctx, in)
	observability.RegistrationSubmissions.WithLabelValues(outcomeFor(err)).Inc()
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "registration request submitted",
		slog.Uint64("registration_id", uint64(req.ID)),
		slog.String("username", req.Username),
	)

	s.notifyAdmins(ctx, req)
	s.publish(ctx, notifications.EventRegistrationRequestCreated, map[string]any{
		"id":          req.ID,
		"email":       req.Email,
		"username":    req.Username,
		"author_name": req.DisplayName(),
		"status":      req.Status,
		"created_at":  req.CreatedAt,
	})
	cache.Invalidate(ctx, cache.RegistrationStatsKey)

	return req, nil
}

func (s *RegistrationService) submit(ctx context.Context, in SubmitInput) (*models.RegistrationRequest, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, models.NewValidationError("email, username and password are required")
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewDuplicateRegistrationError("a user with this email already exists")
	}

	exists, err = s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewDuplicateRegistrationError("username is already taken")
	}

	exists, err = s.requests.ExistsPendingByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewDuplicateRegistrationError("an active registration request already exists for this email")
	}

	hash, err := hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	req := &models.RegistrationRequest{
		Email:      email,
		Username:   username,
		Password:   hash,
		AuthorName: strings.TrimSpace(in.AuthorName),
		Status:     models.RegistrationStatusPending,
		CreatedAt:  s.now(),
	}
	// A concurrent submission that slipped past the check above is caught
	// by the pending-email unique index.
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve accepts a pending request and creates the AUTHOR user and verified
// author profile in the same transaction.
func (s *RegistrationService) Approve(ctx context.Context, id uint, adminComment, adminEmail string) (*models.RegistrationRequest, error) {
	span, ctx := observability.StartSpan(ctx, "registration.approve",
		attribute.Int64("registration.id", int64(id)))
	defer span.End()

	req, err := s.approve(ctx, id, adminComment, adminEmail)
	observability.RegistrationReviews.WithLabelValues("approve", outcomeFor(err)).Inc()
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "registration request approved",
		slog.Uint64("registration_id", uint64(id)),
		slog.String("admin_email", adminEmail),
	)

	var comment string
	if req.AdminComment != nil {
		comment = *req.AdminComment
	}
	if msg, err := notifications.ApprovalMessage(req, comment, s.cfg.BaseURL); err != nil {
		middleware.Logger.ErrorContext(ctx, "render approval mail failed", slog.String("error", err.Error()))
	} else {
		s.deliver(ctx, msg)
	}
	s.publishReviewed(ctx, req)
	cache.InvalidateRegistration(ctx, id)

	return req, nil
}

func (s *RegistrationService) approve(ctx context.Context, id uint, adminComment, adminEmail string) (*models.RegistrationRequest, error) {
	if strings.TrimSpace(adminComment) == "" {
		adminComment = ""
	}

	var approved *models.RegistrationRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := s.requests.WithTx(tx)
		users := s.users.WithTx(tx)
		authors := s.authors.WithTx(tx)

		req, err := requests.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != models.RegistrationStatusPending {
			return alreadyProcessed(id)
		}
		// The comment is only judged once the request is known to be reviewable.
		if err := checkComment(adminComment, false); err != nil {
			return err
		}

		exists, err := users.ExistsByEmail(ctx, req.Email)
		if err != nil {
			return err
		}
		if exists {
			return models.NewConflictError(fmt.Sprintf("a user with email %s already exists", req.Email))
		}
		exists, err = users.ExistsByUsername(ctx, req.Username)
		if err != nil {
			return err
		}
		if exists {
			return models.NewConflictError(fmt.Sprintf("username %s is already taken", req.Username))
		}

		review := models.RegistrationReview{Comment: adminComment, AdminEmail: adminEmail, At: s.now()}
		flipped, err := requests.MarkProcessed(ctx, id, models.RegistrationStatusApproved, review)
		if err != nil {
			return err
		}
		if !flipped {
			return alreadyProcessed(id)
		}

		user := &models.User{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			Role:     models.RoleAuthor,
		}
		if err := users.Create(ctx, user); err != nil {
			return err
		}

		author := &models.Author{
			UserID:     user.ID,
			AuthorName: req.DisplayName(),
			Bio:        models.DefaultAuthorBio,
			IsVerified: true,
		}
		if err := authors.Create(ctx, author); err != nil {
			return err
		}

		applyReview(req, models.RegistrationStatusApproved, review)
		approved = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// Reject closes a pending request. The comment is required and is sent to
// the applicant unchanged.
func (s *RegistrationService) Reject(ctx context.Context, id uint, adminComment, adminEmail string) (*models.RegistrationRequest, error) {
	span, ctx := observability.StartSpan(ctx, "registration.reject",
		attribute.Int64("registration.id", int64(id)))
	defer span.End()

	req, err := s.reject(ctx, id, adminComment, adminEmail)
	observability.RegistrationReviews.WithLabelValues("reject", outcomeFor(err)).Inc()
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "registration request rejected",
		slog.Uint64("registration_id", uint64(id)),
		slog.String("admin_email", adminEmail),
	)

	if msg, err := notifications.RejectionMessage(req, adminComment); err != nil {
		middleware.Logger.ErrorContext(ctx, "render rejection mail failed", slog.String("error", err.Error()))
	} else {
		s.deliver(ctx, msg)
	}
	s.publishReviewed(ctx, req)
	cache.InvalidateRegistration(ctx, id)

	return req, nil
}

func (s *RegistrationService) reject(ctx context.Context, id uint, adminComment, adminEmail string) (*models.RegistrationRequest, error) {
	if err := checkComment(adminComment, true); err != nil {
		return nil, err
	}

	var rejected *models.RegistrationRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := s.requests.WithTx(tx)

		req, err := requests.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != models.RegistrationStatusPending {
			return alreadyProcessed(id)
		}

		review := models.RegistrationReview{Comment: adminComment, AdminEmail: adminEmail, At: s.now()}
		flipped, err := requests.MarkProcessed(ctx, id, models.RegistrationStatusRejected, review)
		if err != nil {
			return err
		}
		if !flipped {
			return alreadyProcessed(id)
		}

		applyReview(req, models.RegistrationStatusRejected, review)
		rejected = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// List returns one page of requests, newest first. A nil Status lists all.
func (s *RegistrationService) List(ctx context.Context, filter repository.RegistrationFilter) (*models.RegistrationRequestPage, error) {
	return s.requests.List(ctx, filter)
}

func (s *RegistrationService) ListAll(ctx context.Context, page, size int) (*models.RegistrationRequestPage, error) {
	return s.List(ctx, repository.RegistrationFilter{Page: page, Size: size})
}

func (s *RegistrationService) ListByStatus(ctx context.Context, status models.RegistrationStatus, page, size int) (*models.RegistrationRequestPage, error) {
	return s.List(ctx, repository.RegistrationFilter{Status: &status, Page: page, Size: size})
}

// Get returns one request, cached briefly in Redis until it is reviewed.
func (s *RegistrationService) Get(ctx context.Context, id uint) (*models.RegistrationRequest, error) {
	var req models.RegistrationRequest
	err := cache.Aside(ctx, cache.RegistrationRequestKey(id), &req, cache.RegistrationRequestTTL, func() error {
		found, err := s.requests.GetByID(ctx, id)
		if err != nil {
			return err
		}
		req = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Stats returns per-status counts, cached briefly in Redis.
func (s *RegistrationService) Stats(ctx context.Context) (*models.RegistrationStats, error) {
	var stats models.RegistrationStats
	err := cache.Aside(ctx, cache.RegistrationStatsKey, &stats, cache.RegistrationStatsTTL, func() error {
		counts, err := s.requests.CountByStatus(ctx)
		if err != nil {
			return err
		}
		stats = *counts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *RegistrationService) notifyAdmins(ctx context.Context, req *models.RegistrationRequest) {
	if len(s.cfg.AdminRecipients) == 0 {
		middleware.Logger.WarnContext(ctx, "no admin recipients configured, skipping new request mail",
			slog.Uint64("registration_id", uint64(req.ID)))
		return
	}
	msg, err := notifications.NewRequestMessage(req, s.cfg.AdminRecipients, s.cfg.BaseURL)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "render admin mail failed", slog.String("error", err.Error()))
		return
	}
	s.deliver(ctx, msg)
}

// deliver makes one bounded send attempt. Failures are logged and counted,
// never returned.
func (s *RegistrationService) deliver(ctx context.Context, msg notifications.Message) {
	if s.mailer == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MailTimeout)
	defer cancel()

	if err := s.mailer.Send(sendCtx, msg); err != nil {
		observability.NotificationDeliveries.WithLabelValues(msg.Kind, "failed").Inc()
		middleware.Logger.WarnContext(ctx, "notification delivery failed",
			slog.String("kind", msg.Kind),
			slog.String("to", strings.Join(msg.To, ",")),
			slog.String("error", err.Error()),
		)
		return
	}
	observability.NotificationDeliveries.WithLabelValues(msg.Kind, "sent").Inc()
}

func (s *RegistrationService) publishReviewed(ctx context.Context, req *models.RegistrationRequest) {
	payload := map[string]any{
		"id":           req.ID,
		"status":       req.Status,
		"processed_at": req.ProcessedAt,
	}
	if req.AdminEmail != nil {
		payload["admin_email"] = *req.AdminEmail
	}
	s.publish(ctx, notifications.EventRegistrationRequestReviewed, payload)
}

func (s *RegistrationService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.events != nil {
		s.events.PublishAdminEvent(ctx, eventType, payload)
	}
}

func checkComment(comment string, required bool) error {
	review := validation.Review{AdminComment: strings.TrimSpace(comment), CommentRequired: required}
	if err := review.Validate(); err != nil {
		return models.NewValidationError(validation.Message(err))
	}
	return nil
}

func alreadyProcessed(id uint) error {
	return models.NewInvalidStateError(fmt.Sprintf("registration request %d has already been processed", id))
}

// applyReview mirrors MarkProcessed onto the loaded row.
func applyReview(req *models.RegistrationRequest, status models.RegistrationStatus, review models.RegistrationReview) {
	at := review.At
	req.Status = status
	req.ProcessedAt = &at
	req.UpdatedAt = at
	req.AdminComment = nil
	if review.Comment != "" {
		comment := review.Comment
		req.AdminComment = &comment
	}
	req.AdminEmail = nil
	if review.AdminEmail != "" {
		adminEmail := review.AdminEmail
		req.AdminEmail = &adminEmail
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case models.HasCode(err, models.CodeValidation):
		return observability.OutcomeInvalid
	case models.HasCode(err, models.CodeDuplicateRegistration):
		return observability.OutcomeDuplicate
	case models.HasCode(err, models.CodeConflict):
		return observability.OutcomeConflict
	case models.HasCode(err, models.CodeInvalidState):
		return observability.OutcomeInvalidState
	case models.HasCode(err, models.CodeNotFound):
		return observability.OutcomeNotFound
	default:
		return observability.OutcomeError
	}
}
