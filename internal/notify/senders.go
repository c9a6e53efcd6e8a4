package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-kiosk-orders/internal/events"
	"gopkg.in/gomail.v2"
)

// PushSender hands the notification to the push gateway over Kafka.
type PushSender struct {
	P        events.Publisher
	Producer string
}

func (s *PushSender) Send(_ context.Context, n Notification) error {
	if len(n.Tokens) == 0 {
		return ErrNoTargets
	}
	env, err := events.New(events.EventOperatorNotification, s.Producer, n.OrderID, events.OperatorNotificationPayload{
		Title:   n.Title,
		Message: n.Message,
		OrderID: n.OrderID,
		UserID:  n.UserID,
		Tokens:  n.Tokens,
	})
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.P.Publish(events.TopicOperatorNotify, events.PartitionKey(n.OrderID), b)
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender mails operators through SMTP.
type EmailSender struct {
	d    dialer
	from string
	to   []string
}

func NewEmailSender(host string, port int, user, pass, from string, to []string) *EmailSender {
	return &EmailSender{d: gomail.NewDialer(host, port, user, pass), from: from, to: to}
}

func (s *EmailSender) Send(_ context.Context, n Notification) error {
	if len(s.to) == 0 {
		return ErrNoTargets
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", fmt.Sprintf("%s: %s", n.Title, n.OrderID))
	m.SetBody("text/plain", strings.Join([]string{
		n.Message,
		"Order: " + n.OrderID,
		"Customer: " + n.UserID,
	}, "\n"))
	return s.d.DialAndSend(m)
}
