package mail

import (
	"context"
	"errors"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sampleMessage() Message {
	return Message{
		To:          "invitee@example.com",
		Subject:     InvitationSubject("Apollo"),
		InviterName: "Ada",
		ProjectName: "Apollo",
		Role:        "Editor",
		AcceptURL:   "https://app.example.com/invitations/abc",
		ExpiresOn:   time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC),
	}
}

func TestMessageBody(t *testing.T) {
	t.Parallel()

	msg := sampleMessage()
	require.Equal(t, "You've been invited to join Apollo", msg.Subject)

	body := msg.Body()
	require.Contains(t, body, "Ada has invited you to join Apollo as Editor.")
	require.Contains(t, body, "https://app.example.com/invitations/abc")
	require.Contains(t, body, "March 9, 2026")
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, sampleMessage().Validate())

	msg := sampleMessage()
	msg.To = " "
	require.Error(t, msg.Validate())

	msg = sampleMessage()
	msg.Subject = "hi\r\nBcc: someone@example.com"
	require.Error(t, msg.Validate())
}

func TestSMTPSender(t *testing.T) {
	t.Parallel()

	var (
		gotAddr string
		gotTo   []string
		gotRaw  string
		gotAuth smtp.Auth
	)
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", Password: "secret"})
	sender.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotRaw = addr, a, to, string(msg)
		return nil
	}

	require.NoError(t, sender.Send(context.Background(), sampleMessage()))
	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.NotNil(t, gotAuth)
	require.Equal(t, []string{"invitee@example.com"}, gotTo)
	require.Contains(t, gotRaw, "Subject: You've been invited to join Apollo\r\n")
	require.Contains(t, gotRaw, "From: noreply@example.com\r\n")

	sender.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }
	require.ErrorContains(t, sender.Send(context.Background(), sampleMessage()), "relay down")
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	sender := NewLogSender(zaptest.NewLogger(t))
	require.NoError(t, sender.Send(context.Background(), sampleMessage()))
}

type countingMail struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingMail) RecordMail(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[outcome]++
}

func (c *countingMail) get(outcome string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[outcome]
}

type mockSender struct {
	sendFn func(ctx context.Context, msg Message) error
}

func (m *mockSender) Send(ctx context.Context, msg Message) error {
	if m.sendFn == nil {
		panic("sendFn not configured")
	}
	return m.sendFn(ctx, msg)
}
