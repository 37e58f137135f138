package notify

import (
	"context"
	"fmt"

	"civicservice-be/models"

	"github.com/apex/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier emails the submitter through the SendGrid v3 API
type SendGridNotifier struct {
	client    mailClient
	fromName  string
	fromEmail string
}

func NewSendGridNotifier(apiKey, fromName, fromEmail string) *SendGridNotifier {
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (n *SendGridNotifier) NotifyStatusChange(ctx context.Context, change models.StatusChange) error {
	msg := RenderStatusChange(change)

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(n.fromName, n.fromEmail))
	message.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(change.DisplayName, change.Contact))
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", msg.Text))
	message.AddContent(mail.NewContent("text/html", msg.HTML))

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", response.StatusCode, response.Body)
	}

	log.Infof("Status update email sent to %s for request %s", change.Contact, change.RequestID)
	return nil
}
