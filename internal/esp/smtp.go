package esp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/sending"
)

// SMTPConfig configures the mailbox transport.
type SMTPConfig struct {
	Hostname string        `yaml:"hostname" env:"SMTP_HELO_HOSTNAME"`
	Timeout  time.Duration `yaml:"timeout" env:"SMTP_TIMEOUT"`
	// InsecureSkipVerify disables certificate checks; local relays only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

var defaultHosts = map[domain.ProviderKind]string{
	domain.ProviderGmail:   "smtp.gmail.com",
	domain.ProviderOutlook: "smtp.office365.com",
}

// SMTP delivers through the account's own submission server using SASL
// PLAIN. Port 465 uses implicit TLS; other ports upgrade with STARTTLS when
// the server offers it.
type SMTP struct {
	cfg SMTPConfig
	now func() time.Time
	log *logger.Logger
}

// NewSMTP creates the transport.
func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTP{cfg: cfg, now: time.Now, log: logger.With("component", "esp.smtp")}
}

func endpoint(a *domain.SendingAccount) (string, int) {
	host, port := a.SMTPHost, a.SMTPPort
	if host == "" {
		host = defaultHosts[a.Provider]
	}
	if port == 0 {
		port = 587
	}
	return host, port
}

// Send implements sending.Transport.
func (s *SMTP) Send(ctx context.Context, account *domain.SendingAccount, msg *sending.Message) (string, error) {
	host, port := endpoint(account)
	if host == "" {
		return "", sending.Permanent("no_smtp_host", fmt.Errorf("account %s has no SMTP host", account.ID))
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12, InsecureSkipVerify: s.cfg.InsecureSkipVerify}

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", sending.Transient("connect", fmt.Errorf("connect %s: %w", addr, err))
	}
	if port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = s.now().Add(s.cfg.Timeout)
	}
	_ = conn.SetDeadline(deadline)

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(s.cfg.Hostname); err != nil {
		return "", classifySMTP("EHLO", err)
	}
	if port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return "", sending.Transient("starttls", fmt.Errorf("STARTTLS %s: %w", addr, err))
			}
		}
	}
	if account.SMTPUsername != "" {
		if err := c.Auth(sasl.NewPlainClient("", account.SMTPUsername, account.SMTPPassword)); err != nil {
			return "", classifySMTP("AUTH", err)
		}
	}

	messageID := newMessageID(msg.FromEmail)
	data, err := buildMessage(msg, messageID, s.now())
	if err != nil {
		return "", sending.Permanent("build", err)
	}

	if err := c.Mail(msg.FromEmail, nil); err != nil {
		return "", classifySMTP("MAIL FROM", err)
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return "", classifySMTP("RCPT TO", err)
	}
	w, err := c.Data()
	if err != nil {
		return "", classifySMTP("DATA", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", sending.Transient("write", fmt.Errorf("write message: %w", err))
	}
	if err := w.Close(); err != nil {
		return "", classifySMTP("DATA close", err)
	}
	_ = c.Quit()

	s.log.Debug("smtp accepted message", "server", addr, "message_id", messageID, "to", msg.To)
	return messageID, nil
}

// classifySMTP maps reply codes: 530/534/535 need new credentials, other 5xx
// are permanent, 4xx and transport errors are retried.
func classifySMTP(stage string, err error) error {
	wrapped := fmt.Errorf("%s: %w", stage, err)
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		return sending.Transient("io", wrapped)
	}
	code := strconv.Itoa(smtpErr.Code)
	switch {
	case smtpErr.Code == 530 || smtpErr.Code == 534 || smtpErr.Code == 535:
		return sending.AuthRequired(code, wrapped)
	case smtpErr.Code >= 500:
		return sending.Permanent(code, wrapped)
	default:
		return sending.Transient(code, wrapped)
	}
}
