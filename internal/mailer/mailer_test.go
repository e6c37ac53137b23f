package mailer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := zerolog.Nop()

	s, err := New(Config{}, &log)
	require.NoError(t, err)
	assert.IsType(t, &logSender{}, s)
	assert.NoError(t, s.Send(context.Background(), Message{To: "a@b.c", Subject: "hi", Body: "x\ny"}))

	s, err = New(Config{Provider: ProviderSendGrid, SendGridKey: "key", From: "noreply@campus.edu"}, &log)
	require.NoError(t, err)
	assert.IsType(t, &sendgridSender{}, s)

	s, err = New(Config{Provider: ProviderSMTP, SMTPHost: "localhost", SMTPPort: 25, From: "noreply@campus.edu"}, &log)
	require.NoError(t, err)
	assert.IsType(t, &smtpSender{}, s)

	_, err = New(Config{Provider: ProviderSMTP}, &log)
	assert.Error(t, err)

	_, err = New(Config{Provider: ProviderSendGrid, From: "noreply@campus.edu"}, &log)
	assert.Error(t, err)

	_, err = New(Config{Provider: "pigeon"}, &log)
	assert.Error(t, err)
}

func TestCompose(t *testing.T) {
	subject, body := Compose("reminder", "Ada", "Go Meetup", "at 10:00 AM on Jun 1, 2025")
	assert.Contains(t, subject, "Go Meetup")
	assert.Contains(t, body, "Hello Ada!")
	assert.Contains(t, body, "at 10:00 AM on Jun 1, 2025")

	subject, body = Compose("cancelled", "", "Go Meetup", "")
	assert.Contains(t, subject, "cancelled")
	assert.Contains(t, body, "Hello!")
}
