// Package mailer sends room transcript summaries over SMTP. Everything
// here is best-effort: a failed send is logged and dropped.
package mailer

import (
	"log"

	gomail "gopkg.in/gomail.v2"
)

// Mailer is the narrow interface the chat core sees.
type Mailer interface {
	SendSummary(text string)
}

type SMTPMailer struct {
	host string
	port int
	user string
	pass string
	from string
	to   string
}

func NewSMTPMailer(host string, port int, user, pass, from, to string) *SMTPMailer {
	return &SMTPMailer{
		host: host,
		port: port,
		user: user,
		pass: pass,
		from: from,
		to:   to,
	}
}

func (m *SMTPMailer) SendSummary(text string) {
	if m.host == "" || m.to == "" {
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", "Chat room summary")
	msg.SetBody("text/plain", text)

	dialer := gomail.NewDialer(m.host, m.port, m.user, m.pass)
	if err := dialer.DialAndSend(msg); err != nil {
		log.Printf("[MAIL] Summary send failed: %v", err)
		return
	}
	log.Println("[MAIL] Room summary dispatched")
}
