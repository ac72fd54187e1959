package notify

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail"
)

// SMTPNotifier delivers notifications over SMTP.
type SMTPNotifier struct {
	host string
	port int
	from string
	user string
	pass string
}

func NewSMTPNotifier(host string, port int, from, user, pass string) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, user: user, pass: pass}
}

func (s *SMTPNotifier) NotifyOwnerOfRequest(ctx context.Context, ownerEmail, requestID string) (*DeliveryResult, error) {
	subject := "Emergency access requested for your vault"
	body := fmt.Sprintf(
		"A trusted contact has requested emergency access to your vault (request %s).\n"+
			"If this is unexpected, log in and deny the request before the waiting period ends.",
		requestID)

	if err := s.send(ctx, ownerEmail, subject, body); err != nil {
		return nil, err
	}
	return &DeliveryResult{Delivered: true, Detail: "smtp"}, nil
}

func (s *SMTPNotifier) NotifyContactOfResolution(ctx context.Context, contactEmail, requestID, outcome string) error {
	subject := "Your emergency access request was resolved"
	body := fmt.Sprintf("Your emergency access request %s was resolved: %s.", requestID, outcome)
	return s.send(ctx, contactEmail, subject, body)
}

func (s *SMTPNotifier) NotifyContactOfInvite(ctx context.Context, contactEmail, inviteToken string) error {
	subject := "You have been invited as a trusted contact"
	body := fmt.Sprintf("Use invite token %s to accept the invitation.", inviteToken)
	return s.send(ctx, contactEmail, subject, body)
}

// send runs the blocking SMTP dial in a goroutine so that ctx expiry returns
// control to the caller; the state machine treats that as a delivery timeout.
func (s *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := mail.NewDialer(s.host, s.port, s.user, s.pass)

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
