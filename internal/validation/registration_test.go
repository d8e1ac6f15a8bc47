package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorRequest_Validate(t *testing.T) {
	valid := AuthorRequest{
		Email:      "a@x.com",
		Username:   "alice",
		Password:   "SecurePass12!@",
		AuthorName: "Al",
	}
	require.NoError(t, valid.Validate())

	noAuthorName := valid
	noAuthorName.AuthorName = ""
	assert.NoError(t, noAuthorName.Validate(), "author name is optional")

	tests := []struct {
		name    string
		mutate  func(r *AuthorRequest)
		wantMsg string
	}{
		{"missing email", func(r *AuthorRequest) { r.Email = "" }, "email: cannot be blank"},
		{"bad email", func(r *AuthorRequest) { r.Email = "not-an-email" }, "email: must be a valid email address"},
		{"weak password", func(r *AuthorRequest) { r.Password = "pw" }, "password must be at least 12 characters long"},
		{"bad username", func(r *AuthorRequest) { r.Username = "a b" }, "username can only contain"},
		{"long author name", func(r *AuthorRequest) { r.AuthorName = strings.Repeat("x", 121) }, "authorName:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.Contains(t, Message(err), tt.wantMsg)
		})
	}
}

func TestAuthorRequest_Normalize(t *testing.T) {
	r := AuthorRequest{Email: "  A@X.COM ", Username: " alice ", AuthorName: " Al "}
	r.Normalize()
	assert.Equal(t, "a@x.com", r.Email)
	assert.Equal(t, "alice", r.Username)
	assert.Equal(t, "Al", r.AuthorName)
}

func TestReview_Validate(t *testing.T) {
	assert.NoError(t, Review{}.Validate(), "approval comment is optional")

	err := Review{CommentRequired: true}.Validate()
	require.Error(t, err)
	assert.Equal(t, "admin comment is required to reject a request", Message(err))

	assert.NoError(t, Review{AdminComment: "spam", CommentRequired: true}.Validate())
	assert.Error(t, Review{AdminComment: strings.Repeat("x", MaxAdminCommentLength+1)}.Validate())
}

func TestSignup_Validate(t *testing.T) {
	s := Signup{Username: " bob ", Email: " BOB@x.com", Password: "SecurePass12!@"}
	s.Normalize()
	assert.NoError(t, s.Validate())
	assert.Equal(t, "bob@x.com", s.Email)

	s.Password = ""
	assert.Contains(t, Message(s.Validate()), "password: cannot be blank")
}
