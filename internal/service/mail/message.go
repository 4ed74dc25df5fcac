package mail

import (
	"time"
)

// Known templates
const (
	TemplateWelcome       = "welcome"
	TemplatePasswordReset = "password_reset"
	TemplatePromotion     = "promotion"
)

// Stages of a mail job, used for metrics
const (
	StageEnqueued = "enqueued"
	StageSent     = "sent"
	StageRetried  = "retried"
	StageDropped  = "dropped"
)

// Message is a mail job as it travels through the queue
type Message struct {
	ID         string            `json:"id"`
	To         string            `json:"to"`
	Template   string            `json:"template"`
	Data       map[string]string `json:"data"`
	Attempt    int               `json:"attempt"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Email ready to be sent
type Email struct {
	To      string
	Subject string
	HTML    string
}

type recorder interface {
	MailEvent(template string, stage string)
}

type noopRecorder struct{}

func (noopRecorder) MailEvent(string, string) {}
