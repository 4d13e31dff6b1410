package email

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	// AdminAddress receives ticket notifications. Empty disables them.
	AdminAddress string
}

func NewSender(host, port, username, password, from, adminAddress string) *Sender {
	return &Sender{
		Host:         host,
		Port:         port,
		Username:     username,
		Password:     password,
		From:         from,
		AdminAddress: adminAddress,
	}
}

var ticketTemplate = template.Must(template.New("ticket").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #6200ee; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .ticket { padding: 10px; background-color: #f5f5f5; border-left: 4px solid #03dac6; white-space: pre-wrap; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>New support ticket</h1>
        </div>
        <div class="content">
            <p><strong>{{.Username}}</strong> filed a ticket:</p>
            <div class="ticket">{{.Text}}</div>
            <p>Open the tickets channel to follow up.</p>
        </div>
    </div>
</body>
</html>
`))

func renderTicket(username, text string) (string, error) {
	var body bytes.Buffer
	if err := ticketTemplate.Execute(&body, map[string]string{"Username": username, "Text": text}); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}

// NotifyTicket mails the administrator about a new ticket.
func (s *Sender) NotifyTicket(username, text string) error {
	if s.AdminAddress == "" {
		return nil
	}

	body, err := renderTicket(username, text)
	if err != nil {
		return err
	}

	// Email headers
	headers := [][2]string{
		{"From", s.From},
		{"To", s.AdminAddress},
		{"Subject", "New ticket from " + username},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=\"UTF-8\""},
	}

	message := ""
	for _, h := range headers {
		message += fmt.Sprintf("%s: %s\r\n", h[0], h[1])
	}
	message += "\r\n" + body

	// If no host is configured, just log it (for development/demo purposes if flags aren't set)
	if s.Host == "" {
		log.Printf("MOCK EMAIL TO: %s SUBJECT: New ticket from %s", s.AdminAddress, username)
		return nil
	}

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return smtp.SendMail(addr, auth, s.From, []string{s.AdminAddress}, []byte(message))
}
