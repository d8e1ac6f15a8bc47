package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"soundcheck/internal/middleware"
	"soundcheck/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// consoleRequest sends a console request authenticated by the access token
// cookie, carrying any extra cookies (the flash session).
func (e *testEnv) consoleRequest(t *testing.T, method, target, token string, form url.Values, cookies []*http.Cookie) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: token})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestConsole_ListAndReview(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "root", "admin@x.com", models.RoleAdmin)
	token := env.token(t, admin.ID)

	id := env.submit(t, "a@x.com", "alice")
	other := env.submit(t, "b@x.com", "bobby")

	resp := env.consoleRequest(t, http.MethodGet, "/admin/registration-requests?status=pending", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page := readBody(t, resp)
	assert.Contains(t, page, "a@x.com")
	assert.Contains(t, page, "b@x.com")
	assert.Contains(t, page, fmt.Sprintf("/admin/registration-requests/%d/approve?status=pending", id))

	t.Run("reject without comment flashes an error", func(t *testing.T) {
		resp := env.consoleRequest(t, http.MethodPost,
			fmt.Sprintf("/admin/registration-requests/%d/reject?status=pending", id), token,
			url.Values{"adminComment": {"  "}}, nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/admin/registration-requests?status=pending", resp.Header.Get("Location"))

		follow := env.consoleRequest(t, http.MethodGet, resp.Header.Get("Location"), token, nil, resp.Cookies())
		require.Equal(t, http.StatusOK, follow.StatusCode)
		assert.Contains(t, readBody(t, follow), "admin comment is required to reject a request")

		stored, err := env.srv.registrationService.Get(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, models.RegistrationStatusPending, stored.Status)
	})

	t.Run("approve", func(t *testing.T) {
		resp := env.consoleRequest(t, http.MethodPost,
			fmt.Sprintf("/admin/registration-requests/%d/approve", id), token,
			url.Values{"adminComment": {""}}, nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/admin/registration-requests", resp.Header.Get("Location"))

		follow := env.consoleRequest(t, http.MethodGet, resp.Header.Get("Location"), token, nil, resp.Cookies())
		body := readBody(t, follow)
		assert.Contains(t, body, fmt.Sprintf("Registration request #%d approved.", id))

		// The flash is shown once.
		again := env.consoleRequest(t, http.MethodGet, "/admin/registration-requests", token, nil, resp.Cookies())
		assert.NotContains(t, readBody(t, again), fmt.Sprintf("Registration request #%d approved.", id))
	})

	t.Run("reject with comment", func(t *testing.T) {
		resp := env.consoleRequest(t, http.MethodPost,
			fmt.Sprintf("/admin/registration-requests/%d/reject", other), token,
			url.Values{"adminComment": {"Needs <more> reviews"}}, nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		stored, err := env.srv.registrationService.Get(t.Context(), other)
		require.NoError(t, err)
		assert.Equal(t, models.RegistrationStatusRejected, stored.Status)
		require.NotNil(t, stored.AdminComment)
		assert.Equal(t, "Needs <more> reviews", *stored.AdminComment)

		list := env.consoleRequest(t, http.MethodGet, "/admin/registration-requests?status=rejected", token, nil, nil)
		body := readBody(t, list)
		assert.Contains(t, body, "Needs &lt;more&gt; reviews")
		assert.NotContains(t, body, "Needs <more> reviews")
	})

	t.Run("reviewing twice flashes already processed", func(t *testing.T) {
		resp := env.consoleRequest(t, http.MethodPost,
			fmt.Sprintf("/admin/registration-requests/%d/approve", id), token, url.Values{}, nil)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		follow := env.consoleRequest(t, http.MethodGet, "/admin/registration-requests", token, nil, resp.Cookies())
		assert.Contains(t, readBody(t, follow), "has already been processed")
	})
}

func TestConsole_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	reader := env.createUser(t, "reader", "reader@x.com", models.RoleReader)

	resp := env.consoleRequest(t, http.MethodGet, "/admin/registration-requests", env.token(t, reader.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.consoleRequest(t, http.MethodGet, "/admin/registration-requests", "garbage", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "reader_1",
		"email":    "Reader@X.com",
		"password": "Str0ng!Passw0rd",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var signup tokenResponse
	decode(t, resp, &signup)
	assert.Equal(t, models.RoleReader, signup.User.Role)
	assert.NotEmpty(t, signup.Token)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.AccessTokenCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	t.Run("duplicate signup", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
			"username": "reader_2",
			"email":    "reader@x.com",
			"password": "Str0ng!Passw0rd",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("bad credentials", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    "reader@x.com",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "reader@x.com",
		"password": "Str0ng!Passw0rd",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login tokenResponse
	decode(t, resp, &login)

	resp = env.do(t, http.MethodGet, "/api/users/me", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("refresh revokes the old token", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/refresh", login.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var refreshed tokenResponse
		decode(t, resp, &refreshed)
		assert.NotEqual(t, login.Token, refreshed.Token)

		resp = env.do(t, http.MethodGet, "/api/users/me", login.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		login = refreshed
	})

	t.Run("logout", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodGet, "/api/users/me", login.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		var body models.ErrorResponse
		decode(t, resp, &body)
		assert.Equal(t, "Token has been revoked", body.Error)
	})
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("x"), http.StatusBadRequest},
		{models.NewDuplicateRegistrationError("x"), http.StatusBadRequest},
		{models.NewNotFoundError("Registration request", 1), http.StatusNotFound},
		{models.NewInvalidStateError("x"), http.StatusConflict},
		{models.NewConflictError("x"), http.StatusConflict},
		{models.NewForbiddenError("x"), http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", models.NewNotFoundError("x", 2)), http.StatusNotFound},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), tt.err.Error())
	}
}

func TestConsoleURL(t *testing.T) {
	assert.Equal(t, "/admin/registration-requests", consoleURL("", 1))
	assert.Equal(t, "/admin/registration-requests?page=3&status=approved", consoleURL("approved", 3))
	assert.Equal(t, "", consoleQuery("", 0))
}
