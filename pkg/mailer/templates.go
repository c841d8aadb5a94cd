package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

var confirmDeletionTmpl = template.Must(template.New("confirm_deletion").Parse(`
<h2 style="color:green">Confirm Deletion of Data</h2>
<p>A request was made to delete the personal data associated with
<b>{{.Email}}</b> on {{.Host}}.</p>
<p>If you made this request, confirm it by following the link below. The link
expires after a limited time.</p>
<p><a href="{{.Link}}">Confirm Deletion of Data</a></p>
<p>If you did not make this request, you can ignore this email.</p>
`))

var approvalRequiredTmpl = template.Must(template.New("approval_required").Parse(`
<h2 style="color:green">Approval Required</h2>
<p>User <b>{{.Email}}</b> has requested deletion of their personal data and has
verified the request by email.</p>
<p>Review and trigger the deletion from the operator console:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
`))

// ConfirmDeletion renders the verification message sent to the subject.
func ConfirmDeletion(to, host, link string) (Message, error) {
	var body bytes.Buffer
	err := confirmDeletionTmpl.Execute(&body, map[string]string{
		"Email": to,
		"Host":  host,
		"Link":  link,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render confirm deletion mail: %w", err)
	}
	return Message{
		To:      []string{to},
		Subject: "Confirm Deletion of Data",
		Body:    body.String(),
	}, nil
}

// ApprovalRequired renders the notification sent to the operator group once a
// subject has verified their deletion request.
func ApprovalRequired(operators []string, subjectEmail, link string) (Message, error) {
	var body bytes.Buffer
	err := approvalRequiredTmpl.Execute(&body, map[string]string{
		"Email": subjectEmail,
		"Link":  link,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render approval required mail: %w", err)
	}
	return Message{
		To:      operators,
		Subject: fmt.Sprintf("User %s has requested for data deletion", subjectEmail),
		Body:    body.String(),
	}, nil
}
