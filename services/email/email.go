// Package emailsvc sends the notification emails.
package emailsvc

import "github.com/trezcool/examoffice/core"

// NewService prints emails in development and sends them through SendGrid once an API key is configured.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Env == "DEV" || conf.Mail.SendgridApiKey == "" {
		return NewConsoleService(conf, logger)
	}
	return NewSendgridService(conf, logger)
}
