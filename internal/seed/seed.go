// Package seed fills a development database with author registration
// requests, either from a YAML preset or generated with gofakeit.
package seed

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"soundcheck/internal/middleware"
	"soundcheck/internal/models"
	"soundcheck/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yml
var presetFS embed.FS

const defaultRejectComment = "Rejected while seeding."

// Preset describes a batch of registration requests to create.
type Preset struct {
	Password   string        `yaml:"password"`
	AdminEmail string        `yaml:"admin_email"`
	Random     int           `yaml:"random"`
	Requests   []RequestSpec `yaml:"requests"`
}

// RequestSpec is one application in a preset. An empty status leaves the
// request pending.
type RequestSpec struct {
	Email      string `yaml:"email"`
	Username   string `yaml:"username"`
	AuthorName string `yaml:"author_name"`
	Status     string `yaml:"status"`
	Comment    string `yaml:"comment"`
}

// Result counts what a seeding run did.
type Result struct {
	Pending  int
	Approved int
	Rejected int
	Skipped  int
}

// ParsePreset decodes and checks a YAML preset.
func ParsePreset(data []byte) (*Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode preset: %w", err)
	}
	if p.Password == "" {
		return nil, fmt.Errorf("preset password is required")
	}
	if p.Random < 0 {
		return nil, fmt.Errorf("preset random count must not be negative")
	}
	for i, r := range p.Requests {
		if r.Email == "" || r.Username == "" {
			return nil, fmt.Errorf("request %d: email and username are required", i)
		}
		if r.Status == "" {
			continue
		}
		status, err := models.ParseRegistrationStatus(r.Status)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		if status.IsTerminal() && p.AdminEmail == "" {
			return nil, fmt.Errorf("request %d: admin_email is required to review requests", i)
		}
	}
	return &p, nil
}

// LoadPreset reads a preset by built-in name ("demo") or file path.
func LoadPreset(nameOrPath string) (*Preset, error) {
	data, err := presetFS.ReadFile("presets/" + nameOrPath + ".yml")
	if err != nil {
		data, err = os.ReadFile(nameOrPath)
		if err != nil {
			return nil, fmt.Errorf("preset %q not found: %w", nameOrPath, err)
		}
	}
	return ParsePreset(data)
}

// Seeder creates requests through the registration workflow so approvals
// produce real author accounts.
type Seeder struct {
	registrations *service.RegistrationService
	faker         *gofakeit.Faker
}

// NewSeeder returns a Seeder whose random data is reproducible for a given seed.
func NewSeeder(registrations *service.RegistrationService, seed int64) *Seeder {
	return &Seeder{registrations: registrations, faker: gofakeit.New(seed)}
}

// Apply creates every request in the preset followed by the random ones.
// Requests that collide with existing data are skipped.
func (s *Seeder) Apply(ctx context.Context, p *Preset) (*Result, error) {
	res := &Result{}
	specs := append([]RequestSpec{}, p.Requests...)
	for i := 0; i < p.Random; i++ {
		specs = append(specs, s.randomSpec(p.AdminEmail != ""))
	}

	for _, spec := range specs {
		if err := s.create(ctx, p, spec, res); err != nil {
			return res, err
		}
	}

	middleware.Logger.InfoContext(ctx, "seeding complete",
		slog.Int("pending", res.Pending),
		slog.Int("approved", res.Approved),
		slog.Int("rejected", res.Rejected),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Seeder) create(ctx context.Context, p *Preset, spec RequestSpec, res *Result) error {
	req, err := s.registrations.Submit(ctx, service.SubmitInput{
		Email:      spec.Email,
		Username:   spec.Username,
		Password:   p.Password,
		AuthorName: spec.AuthorName,
	})
	if err != nil {
		if skippable(err) {
			middleware.Logger.DebugContext(ctx, "seed request skipped",
				slog.String("email", spec.Email), slog.String("reason", err.Error()))
			res.Skipped++
			return nil
		}
		return fmt.Errorf("submit %s: %w", spec.Email, err)
	}

	switch models.RegistrationStatus(strings.ToLower(strings.TrimSpace(spec.Status))) {
	case models.RegistrationStatusApproved:
		if _, err := s.registrations.Approve(ctx, req.ID, spec.Comment, p.AdminEmail); err != nil {
			if !skippable(err) {
				return fmt.Errorf("approve %s: %w", spec.Email, err)
			}
			res.Skipped++
			return nil
		}
		res.Approved++
	case models.RegistrationStatusRejected:
		comment := spec.Comment
		if strings.TrimSpace(comment) == "" {
			comment = defaultRejectComment
		}
		if _, err := s.registrations.Reject(ctx, req.ID, comment, p.AdminEmail); err != nil {
			return fmt.Errorf("reject %s: %w", spec.Email, err)
		}
		res.Rejected++
	default:
		res.Pending++
	}
	return nil
}

// randomSpec generates a plausible applicant. Without an admin email every
// generated request stays pending.
func (s *Seeder) randomSpec(canReview bool) RequestSpec {
	f := s.faker
	first := f.FirstName()
	last := f.LastName()
	spec := RequestSpec{
		Email:      fmt.Sprintf("%s.%s%d@%s", slug(first), slug(last), f.Number(1, 9999), f.DomainName()),
		Username:   fmt.Sprintf("%s_%s%d", slug(first), slug(last)[:1], f.Number(10, 999)),
		AuthorName: first + " " + last,
	}
	if !canReview {
		return spec
	}
	switch roll := f.Number(1, 10); {
	case roll <= 6:
	case roll <= 8:
		spec.Status = string(models.RegistrationStatusApproved)
	default:
		spec.Status = string(models.RegistrationStatusRejected)
		spec.Comment = f.Sentence(8)
	}
	return spec
}

// slug lower-cases s and drops everything but ASCII letters and digits.
func slug(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
	if out == "" {
		return "x"
	}
	return out
}

func skippable(err error) bool {
	return models.HasCode(err, models.CodeDuplicateRegistration) ||
		models.HasCode(err, models.CodeValidation) ||
		models.HasCode(err, models.CodeConflict)
}
