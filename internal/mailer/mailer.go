// Package mailer sends transactional mail for billing documents over
// plain SMTP. Delivery failures are surfaced to the caller, which
// records them as warnings rather than failing the originating
// operation.
package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wyenfos-bills/wyenfos-bills/internal/retry"
	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

type Config struct {
	Host string
	Port int
	From string
}

type Mailer struct {
	cfg         Config
	dialTimeout time.Duration
}

func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg, dialTimeout: 5 * time.Second}
}

func (m *Mailer) addr() string {
	return net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
}

// Send delivers a single plain-text message. The context deadline bounds
// the SMTP dial; the conversation itself runs on the connection's own
// timeouts.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return shared.Validationf("mailer: recipient is required")
	}

	dialer := net.Dialer{Timeout: m.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr())
	if err != nil {
		return shared.Transientf("mailer: dial %s: %v", m.addr(), err)
	}
	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return shared.Transientf("mailer: handshake: %v", err)
	}
	defer client.Close()

	if err := client.Mail(m.cfg.From); err != nil {
		return shared.Transientf("mailer: mail from: %v", err)
	}
	if err := client.Rcpt(to); err != nil {
		return shared.Transientf("mailer: rcpt to: %v", err)
	}
	w, err := client.Data()
	if err != nil {
		return shared.Transientf("mailer: data: %v", err)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		_ = w.Close()
		return shared.Transientf("mailer: write body: %v", err)
	}
	if err := w.Close(); err != nil {
		return shared.Transientf("mailer: close body: %v", err)
	}
	return client.Quit()
}

// CheckLiveness dials the SMTP server and hangs up. Retried with
// backoff so a briefly unreachable relay does not fail worker startup.
func (m *Mailer) CheckLiveness(ctx context.Context) error {
	return retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
		dialer := net.Dialer{Timeout: m.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", m.addr())
		if err != nil {
			return shared.Transientf("mailer: liveness dial %s: %v", m.addr(), err)
		}
		return conn.Close()
	})
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary value with thousands separators and
// two decimal places, e.g. 1,25,000 style grouping is left to the
// locale: English grouping gives "25,750.00".
func FormatAmount(v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	return amountPrinter.Sprintf("%.2f", f)
}
