package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configured() Config {
	return Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "alerts",
		Password: "secret",
		From:     "alerts@example.com",
	}
}

func TestIsConfigured(t *testing.T) {
	assert.False(t, NewSMTPSender(Config{}, nil).IsConfigured())
	assert.False(t, NewSMTPSender(Config{Host: "smtp.example.com"}, nil).IsConfigured())
	assert.True(t, NewSMTPSender(configured(), nil).IsConfigured())
}

func TestSend_Unconfigured(t *testing.T) {
	sender := NewSMTPSender(Config{}, nil)
	err := sender.Send(context.Background(), Message{
		Subject: "s", To: []string{"ops@example.com"}, TextBody: "b",
	})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSend_Validation(t *testing.T) {
	sender := NewSMTPSender(configured(), nil)
	ctx := context.Background()

	err := sender.Send(ctx, Message{Subject: "s", TextBody: "b"})
	require.ErrorIs(t, err, ErrNoRecipients)

	err = sender.Send(ctx, Message{To: []string{"ops@example.com"}, TextBody: "b"})
	require.ErrorIs(t, err, ErrSubjectEmpty)

	err = sender.Send(ctx, Message{Subject: "s", To: []string{"ops@example.com"}})
	require.ErrorIs(t, err, ErrBodyEmpty)
}

func TestSend_EncodesHeadersAndBody(t *testing.T) {
	sender := NewSMTPSender(configured(), nil)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	sender.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := sender.Send(context.Background(), Message{
		Subject:  "Webhook Health Check Failed",
		To:       []string{"ops@example.com", "oncall@example.com"},
		TextBody: "probe was not received",
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Webhook Health Check Failed\r\n")
	assert.Contains(t, string(gotMsg), "To: ops@example.com, oncall@example.com\r\n")
	assert.Contains(t, string(gotMsg), "Content-Type: text/plain; charset=utf-8\r\n")
	assert.Contains(t, string(gotMsg), "probe was not received")
}

func TestSend_HTMLBodyWins(t *testing.T) {
	sender := NewSMTPSender(configured(), nil)
	var gotMsg []byte
	sender.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	err := sender.Send(context.Background(), Message{
		Subject:  "s",
		To:       []string{"ops@example.com"},
		TextBody: "plain",
		HTMLBody: "<b>rich</b>",
	})
	require.NoError(t, err)
	assert.Contains(t, string(gotMsg), "Content-Type: text/html; charset=utf-8\r\n")
	assert.Contains(t, string(gotMsg), "<b>rich</b>")
}

func TestSend_TransportErrorWrapped(t *testing.T) {
	sender := NewSMTPSender(configured(), nil)
	boom := errors.New("connection refused")
	sender.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := sender.Send(context.Background(), Message{
		Subject: "s", To: []string{"ops@example.com"}, TextBody: "b",
	})
	require.ErrorIs(t, err, boom)
}

func TestSend_CancelledContext(t *testing.T) {
	sender := NewSMTPSender(configured(), nil)
	sender.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be attempted with a cancelled context")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.Send(ctx, Message{Subject: "s", To: []string{"ops@example.com"}, TextBody: "b"})
	require.ErrorIs(t, err, context.Canceled)
}
