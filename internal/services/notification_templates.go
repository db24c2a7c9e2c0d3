package services

import (
	"fmt"

	"github.com/roadwatch/roadwatch/pkg/mail"
)

const emailLayout = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
<p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
%s
{{if .ActionURL}}<p><a href="{{.BaseURL}}{{.ActionURL}}">{{if .ActionLabel}}{{.ActionLabel}}{{else}}Open RoadWatch{{end}}</a></p>{{end}}
<p style="font-size: 12px; color: #7b8794;">You are receiving this email because notifications are enabled on your RoadWatch account.</p>
</body>
</html>`

var defaultEmailTemplates = map[string]string{
	TemplateTaskAssigned: `<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
<p>Please review the report and begin work at your earliest convenience.</p>`,
	TemplateReportResolved: `<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
<p>Thank you for helping keep our roads safe.</p>`,
	TemplateDonationReceipt: `<h2>Thank you for your donation</h2>
<p>We received your donation of <strong>{{.Amount}}</strong>{{if .ReportTitle}} towards "{{.ReportTitle}}"{{end}}.</p>
<p>{{.Message}}</p>`,
	TemplateBroadcast: `<h2>{{.Title}}</h2>
<p>{{.Message}}</p>`,
}

// RegisterDefaultEmailTemplates installs the notification email templates into registry.
func RegisterDefaultEmailTemplates(registry *mail.TemplateRegistry) error {
	for name, body := range defaultEmailTemplates {
		if err := registry.Register(name, fmt.Sprintf(emailLayout, body)); err != nil {
			return err
		}
	}
	return nil
}
