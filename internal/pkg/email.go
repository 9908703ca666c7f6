package pkg

import (
	"crypto/tls"
	"fmt"
	"html"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailDialer gomail.Dialer 的最小子集
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

func NewDialer(cfg SMTPConfig) MailDialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{InsecureSkipVerify: false, ServerName: cfg.Host}
	return d
}

func BuildEmail(from, to, subject, htmlBody string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	return m
}

// NotificationHTML 通知邮件正文，lines 为 "标签: 值" 形式
func NotificationHTML(title string, lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><b>%s</b></p>", html.EscapeString(title))
	for _, l := range lines {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(l))
	}
	return b.String()
}
