package validation

import (
	"errors"
	"sort"
	"strings"

	ozzo "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MaxAdminCommentLength bounds the free-text review comment.
const MaxAdminCommentLength = 2000

// AuthorRequest is the public author application payload.
type AuthorRequest struct {
	Email      string `json:"email" form:"email"`
	Username   string `json:"username" form:"username"`
	Password   string `json:"password" form:"password"`
	AuthorName string `json:"authorName" form:"authorName"`
}

// Normalize trims fields and lower-cases the email.
func (r *AuthorRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
	r.AuthorName = strings.TrimSpace(r.AuthorName)
}

// Validate checks field formats; uniqueness is the service's concern.
func (r AuthorRequest) Validate() error {
	return ozzo.ValidateStruct(&r,
		ozzo.Field(&r.Email, ozzo.Required, ozzo.Length(3, 254), is.Email),
		ozzo.Field(&r.Username, ozzo.Required, ozzo.By(rule(ValidateUsername))),
		ozzo.Field(&r.Password, ozzo.Required, ozzo.By(rule(ValidatePassword))),
		ozzo.Field(&r.AuthorName, ozzo.Length(0, 120)),
	)
}

// Signup is the direct reader sign-up payload.
type Signup struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims fields and lower-cases the email.
func (r *Signup) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
}

func (r Signup) Validate() error {
	return ozzo.ValidateStruct(&r,
		ozzo.Field(&r.Username, ozzo.Required, ozzo.By(rule(ValidateUsername))),
		ozzo.Field(&r.Email, ozzo.Required, ozzo.Length(3, 254), is.Email),
		ozzo.Field(&r.Password, ozzo.Required, ozzo.By(rule(ValidatePassword))),
	)
}

// Review is an admin approve/reject form. CommentRequired is set for rejections.
type Review struct {
	AdminComment    string `json:"admin_comment" form:"adminComment"`
	CommentRequired bool   `json:"-" form:"-"`
}

func (r Review) Validate() error {
	rules := []ozzo.Rule{ozzo.Length(0, MaxAdminCommentLength)}
	if r.CommentRequired {
		rules = append([]ozzo.Rule{ozzo.Required.Error("admin comment is required to reject a request")}, rules...)
	}
	return ozzo.ValidateStruct(&r,
		ozzo.Field(&r.AdminComment, rules...),
	)
}

// rule adapts a plain string validator to an ozzo rule.
func rule(fn func(string) error) ozzo.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		return fn(s)
	}
}

// Message flattens an ozzo error into a single user-facing sentence,
// ordered by field name so output is stable.
func Message(err error) string {
	var errs ozzo.Errors
	if !errors.As(err, &errs) {
		return err.Error()
	}

	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if errs[k] == nil {
			continue
		}
		msg := errs[k].Error()
		if !strings.HasPrefix(msg, k) && !strings.HasPrefix(msg, "admin comment") {
			msg = k + ": " + msg
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
