package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/pkg/config"
)

func TestRendererApprovalStatus(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(TemplateApprovalStatus, "a@example.com", "Document Verification Status", map[string]string{
		"FirstName": "Asha",
		"Role":      "student",
		"Status":    "reupload-requested",
		"Remarks":   "<b>blurry</b> marksheet",
	})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", msg.To)
	assert.Contains(t, msg.HTML, "re-upload")
	assert.Contains(t, msg.HTML, "&lt;b&gt;blurry&lt;/b&gt;")
}

func TestRendererCourseRejectedNamesCourse(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	msg, err := r.Render(TemplateCourseRejected, "t@example.com", "Course Approval Update", map[string]string{
		"FirstName":  "Ravi",
		"CourseName": "algebra basics",
	})
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "algebra basics")
}

func TestRendererUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	_, err = r.Render("missing.html", "a@example.com", "x", nil)
	assert.Error(t, err)
}

func TestNewSMTPSenderValidation(t *testing.T) {
	_, err := NewSMTPSender(config.MailConfig{From: "a@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPSender(config.MailConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	s, err := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", Port: 587, From: "a@example.com", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Len(t, s.options, 6)
}

func TestTLSPolicy(t *testing.T) {
	assert.Equal(t, mail.TLSMandatory, tlsPolicy("Mandatory"))
	assert.Equal(t, mail.NoTLS, tlsPolicy("none"))
	assert.Equal(t, mail.TLSOpportunistic, tlsPolicy(""))
}

func TestSMTPSenderRejectsBadRecipient(t *testing.T) {
	s, err := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", Port: 587, From: "a@example.com"})
	require.NoError(t, err)
	err = s.Send(context.Background(), Message{To: "not an address", Subject: "x", HTML: "<p>x</p>"})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(zap.NewNop()).Send(context.Background(), Message{To: "a@example.com"}))
}
