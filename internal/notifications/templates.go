package notifications

import (
	"bytes"
	"fmt"
	"text/template"

	"soundcheck/internal/models"
)

var (
	newRequestTmpl = template.Must(template.New("new_request").Parse(
		`A new author registration request is waiting for review.

Request:     #{{.Request.ID}}
Email:       {{.Request.Email}}
Username:    {{.Request.Username}}
Author name: {{.Request.DisplayName}}
Submitted:   {{.Request.CreatedAt.UTC.Format "2006-01-02 15:04 MST"}}

Review it at {{.ConsoleURL}}
`))

	approvedTmpl = template.Must(template.New("approved").Parse(
		`Hello {{.Request.Username}},

Your application to become an author on Soundcheck has been approved.
You can now sign in with the username and password you registered with:

{{.LoginURL}}
{{if .Comment}}
Note from the reviewer:
{{.Comment}}
{{end}}`))

	rejectedTmpl = template.Must(template.New("rejected").Parse(
		`Hello {{.Request.Username}},

Unfortunately your application to become an author on Soundcheck was not approved.

Reason:
{{.Comment}}
`))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// NewRequestMessage tells admins that req is waiting for review.
func NewRequestMessage(req *models.RegistrationRequest, recipients []string, baseURL string) (Message, error) {
	body, err := render(newRequestTmpl, map[string]any{
		"Request":    req,
		"ConsoleURL": baseURL + "/admin/registration-requests?status=pending",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindNewRegistrationRequest,
		To:      recipients,
		Subject: fmt.Sprintf("New author registration request from %s", req.Username),
		Body:    body,
	}, nil
}

// ApprovalMessage tells the applicant their account exists and how to log in.
func ApprovalMessage(req *models.RegistrationRequest, comment, baseURL string) (Message, error) {
	body, err := render(approvedTmpl, map[string]any{
		"Request":  req,
		"Comment":  comment,
		"LoginURL": baseURL + "/login",
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindRegistrationApproved,
		To:      []string{req.Email},
		Subject: "Your author registration was approved",
		Body:    body,
	}, nil
}

// RejectionMessage carries the admin's comment to the applicant verbatim.
func RejectionMessage(req *models.RegistrationRequest, comment string) (Message, error) {
	body, err := render(rejectedTmpl, map[string]any{
		"Request": req,
		"Comment": comment,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindRegistrationRejected,
		To:      []string{req.Email},
		Subject: "Your author registration was not approved",
		Body:    body,
	}, nil
}
