package report

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

const (
	dialTimeout = 10 * time.Second
	sendTimeout = 30 * time.Second
)

// SMTPConfig configures report delivery by mail
type SMTPConfig struct {
	Addr     string
	From     string
	To       []string
	Username string
	Password string
}

// SMTPSink mails the Markdown report
type SMTPSink struct {
	cfg      SMTPConfig
	renderer *Renderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewSMTPSink creates a new SMTP sink
func NewSMTPSink(cfg SMTPConfig, renderer *Renderer, logger *zap.Logger) *SMTPSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSink{cfg: cfg, renderer: renderer, logger: logger, now: time.Now}
}

// Deliver implements core.ReportSink
func (s *SMTPSink) Deliver(ctx context.Context, report core.RunReport) error {
	md, err := s.renderer.Render(report)
	if err != nil {
		return err
	}
	msg, err := s.compose(Subject(report), md)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg); err != nil {
		return err
	}

	s.logger.Info("Report mailed",
		zap.Strings("to", s.cfg.To),
		zap.String("run_id", report.RunID))
	return nil
}

func (s *SMTPSink) compose(subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: s.cfg.From}})
	to := make([]*mail.Address, 0, len(s.cfg.To))
	for _, addr := range s.cfg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	h.SetContentType("text/markdown", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create report message: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("failed to write report message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close report message: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SMTPSink) send(ctx context.Context, data []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	deadline := time.Now().Add(sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		host, _, _ := net.SplitHostPort(s.cfg.Addr)
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(s.cfg.From, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range s.cfg.To {
		if err := c.Rcpt(recipient, nil); err != nil {
			s.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send report data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// the report has already been accepted
		s.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}
