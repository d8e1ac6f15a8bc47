package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"soundcheck/internal/config"
	"soundcheck/internal/middleware"
	"soundcheck/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func sampleRequest() *models.RegistrationRequest {
	return &models.RegistrationRequest{
		ID:         7,
		Email:      "a@x.com",
		Username:   "alice",
		AuthorName: "Al",
		Status:     models.RegistrationStatusPending,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewMailer(t *testing.T) {
	m, err := NewMailer(&config.Config{MailDriver: "log"})
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)

	m, err = NewMailer(&config.Config{MailDriver: "smtp", SMTPHost: "localhost", SMTPPort: 2525, MailFrom: "noreply@soundcheck.test"})
	require.NoError(t, err)
	assert.IsType(t, &SMTPMailer{}, m)

	_, err = NewMailer(&config.Config{MailDriver: "pigeon"})
	assert.Error(t, err)
}

func TestNewSMTPMailer_RequiresHostAndFrom(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "noreply@soundcheck.test"})
	assert.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "localhost"})
	assert.Error(t, err)
}

func TestSMTPMailer_SendReturnsDeliveryError(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    1,
		From:    "noreply@soundcheck.test",
		Timeout: time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = m.Send(ctx, Message{Kind: KindRegistrationApproved, To: []string{"a@x.com"}, Subject: "hi", Body: "hello"})
	assert.Error(t, err)
}

func TestLogMailer(t *testing.T) {
	m := NewLogMailer(middleware.Logger)

	assert.ErrorIs(t, m.Send(context.Background(), Message{Subject: "nobody"}), ErrNoRecipients)

	require.NoError(t, m.Send(context.Background(), Message{Kind: KindRegistrationRejected, To: []string{"a@x.com"}, Subject: "s", Body: "b"}))
	sent := m.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"a@x.com"}, sent[0].To)
}

func TestTemplates(t *testing.T) {
	req := sampleRequest()

	t.Run("new request", func(t *testing.T) {
		msg, err := NewRequestMessage(req, []string{"admin@x.com", "ops@x.com"}, "https://soundcheck.test")
		require.NoError(t, err)
		assert.Equal(t, KindNewRegistrationRequest, msg.Kind)
		assert.Equal(t, []string{"admin@x.com", "ops@x.com"}, msg.To)
		assert.Contains(t, msg.Subject, "alice")
		assert.Contains(t, msg.Body, "#7")
		assert.Contains(t, msg.Body, "a@x.com")
		assert.Contains(t, msg.Body, "Al")
		assert.Contains(t, msg.Body, "https://soundcheck.test/admin/registration-requests?status=pending")
	})

	t.Run("approval", func(t *testing.T) {
		msg, err := ApprovalMessage(req, "looks good", "https://soundcheck.test")
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x.com"}, msg.To)
		assert.Contains(t, msg.Body, "https://soundcheck.test/login")
		assert.Contains(t, msg.Body, "looks good")
	})

	t.Run("approval without comment", func(t *testing.T) {
		msg, err := ApprovalMessage(req, "", "https://soundcheck.test")
		require.NoError(t, err)
		assert.NotContains(t, msg.Body, "Note from the reviewer")
	})

	t.Run("rejection keeps comment verbatim", func(t *testing.T) {
		comment := "Please link <three> published reviews & try again."
		msg, err := RejectionMessage(req, comment)
		require.NoError(t, err)
		assert.Equal(t, KindRegistrationRejected, msg.Kind)
		assert.Contains(t, msg.Body, comment)
	})
}

func TestEvent_Encode(t *testing.T) {
	raw, err := Event{Type: EventRegistrationRequestCreated, Payload: map[string]any{"id": 3}}.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, EventRegistrationRequestCreated, decoded["type"])
	assert.Equal(t, float64(3), decoded["payload"].(map[string]any)["id"])
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishAdmin(context.Background(), "x"))
	assert.NoError(t, n.StartAdminSubscriber(context.Background(), func(string, string) {}))
}

func TestAdminHub_RegisterBroadcastUnregister(t *testing.T) {
	hub := NewAdminHub()

	a, err := hub.Register(1, nil)
	require.NoError(t, err)
	b, err := hub.Register(2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Count())

	hub.BroadcastAll(`{"type":"ping"}`)
	assert.Equal(t, `{"type":"ping"}`, string(<-a.Send))
	assert.Equal(t, `{"type":"ping"}`, string(<-b.Send))

	hub.UnregisterClient(a)
	hub.UnregisterClient(a)
	assert.Equal(t, 1, hub.Count())
	_, open := <-a.Send
	assert.False(t, open)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.Count())
	_, err = hub.Register(3, nil)
	assert.Error(t, err)
}

func TestAdminHub_ConnectionLimit(t *testing.T) {
	hub := NewAdminHub()
	for i := 0; i < maxAdminConns; i++ {
		_, err := hub.Register(uint(i+1), nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(9999, nil)
	assert.ErrorIs(t, err, ErrAdminFeedFull)
	_ = hub.Shutdown(context.Background())
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewAdminHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)

	for i := 0; i < sendBuffer+5; i++ {
		c.TrySend([]byte("event"))
	}
	assert.Len(t, c.Send, sendBuffer)

	hub.UnregisterClient(c)
	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestAdminHub_StartWiringForwardsRedisMessages(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	hub := NewAdminHub()
	client, err := hub.Register(1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))

	publisher := NewAdminPublisher(n, hub)
	publisher.PublishAdminEvent(ctx, EventRegistrationRequestReviewed, map[string]any{"id": 1, "status": "approved"})

	select {
	case msg := <-client.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, EventRegistrationRequestReviewed, ev.Type)
		assert.Equal(t, "approved", ev.Payload["status"])
	case <-time.After(testEventuallyTimeout):
		t.Fatal("admin event was not delivered")
	}
}

func TestAdminPublisher_LocalFallback(t *testing.T) {
	hub := NewAdminHub()
	client, err := hub.Register(1, nil)
	require.NoError(t, err)

	NewAdminPublisher(NewNotifier(nil), hub).
		PublishAdminEvent(context.Background(), EventRegistrationRequestCreated, map[string]any{"id": 9})

	assert.Eventually(t, func() bool { return len(client.Send) == 1 }, testEventuallyTimeout, testPollInterval)
}
