package notify

import (
	"fmt"
	"html"

	"civicservice-be/models"
)

const portalName = "Civic Service Portal"

// Message is a rendered status update email
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// shortID keeps the first eight characters of the request id
func shortID(change models.StatusChange) string {
	id := change.RequestID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	return id + "..."
}

// RenderStatusChange builds the subject and both bodies for a status update
func RenderStatusChange(change models.StatusChange) Message {
	category := change.Category.DisplayName()
	oldStatus := change.OldStatus.DisplayName()
	newStatus := change.NewStatus.DisplayName()
	name := change.DisplayName
	if name == "" {
		name = change.Contact
	}

	text := fmt.Sprintf(`Hello %s,

Your service request has been updated.

Request ID: %s
Category: %s
Previous Status: %s
New Status: %s

You can view your request details by logging into the %s.

Thank you for helping improve our community.

--
%s
`, name, shortID(change), category, oldStatus, newStatus, portalName, portalName)

	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #550C18; color: white; padding: 20px; text-align: center;">
    <h1 style="margin: 0;">%s</h1>
  </div>
  <div style="padding: 30px; background-color: #f9f9f9;">
    <h2 style="color: #550C18;">Hello %s,</h2>
    <p>Your service request has been updated.</p>
    <div style="background-color: white; padding: 20px; border-radius: 8px; margin: 20px 0;">
      <p><strong>Request ID:</strong> %s</p>
      <p><strong>Category:</strong> %s</p>
      <p><strong>Previous Status:</strong> <span style="color: #666;">%s</span></p>
      <p><strong>New Status:</strong> <span style="color: #E63946; font-weight: bold;">%s</span></p>
    </div>
    <p style="color: #666; font-size: 14px; margin-top: 30px;">Thank you for helping improve our community.</p>
  </div>
</div>`,
		portalName, html.EscapeString(name), shortID(change), category, oldStatus, newStatus)

	return Message{
		Subject: "Service Request Update - " + category,
		Text:    text,
		HTML:    body,
	}
}
