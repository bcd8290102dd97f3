package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"sync"
	"sync/atomic"
	"time"

	"medai-auth/internal/observability/metrics"
	"medai-auth/internal/service"

	"github.com/knadh/smtppool"
)

var _ service.EmailService = (*SMTPMailer)(nil)

// SMTPMailer sends mail through one connection pool per relay.
type SMTPMailer struct {
	mu      sync.Mutex
	servers ServerList
	pools   []*smtppool.Pool
	counter atomic.Uint64
}

func NewSMTPMailer(servers ServerList) (*SMTPMailer, error) {
	if err := servers.validate(); err != nil {
		return nil, err
	}
	m := &SMTPMailer{servers: servers, pools: make([]*smtppool.Pool, len(servers.Servers))}
	for i, srv := range servers.Servers {
		pool, err := connectToPool(srv)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("smtp pool %s: %w", srv.Address(), err)
		}
		m.pools[i] = pool
	}
	return m, nil
}

func connectToPool(server Server) (*smtppool.Pool, error) {
	var auth smtp.Auth
	if server.Auth.Username != "" || server.Auth.Password != "" {
		auth = smtp.PlainAuth("", server.Auth.Username, server.Auth.Password, server.Host)
	}
	conns := server.Connections
	if conns <= 0 {
		conns = 1
	}
	return smtppool.New(smtppool.Opt{
		Host:            server.Host,
		Port:            server.Port,
		MaxConns:        conns,
		IdleTimeout:     server.timeout(),
		PoolWaitTimeout: server.timeout(),
		TLSConfig: &tls.Config{
			InsecureSkipVerify: server.InsecureSkipVerify,
			ServerName:         server.Host,
		},
		Auth: auth,
	})
}

// SendVerification renders and sends the verification mail. A configured
// mailer always reports delivered=true on success.
func (m *SMTPMailer) SendVerification(ctx context.Context, to, code string, ttl time.Duration) (bool, error) {
	msg, err := RenderVerification(to, code, ExpiryMinutes(ttl))
	if err != nil {
		return false, err
	}
	if err := m.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

// Send picks the next relay and hands the message to its pool. A failed
// relay gets its pool rebuilt for the next caller; the message is not retried.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	index := int(m.counter.Add(1) % uint64(len(m.servers.Servers)))

	m.mu.Lock()
	pool := m.pools[index]
	m.mu.Unlock()

	err := pool.Send(smtppool.Email{
		From:    m.servers.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    []byte(msg.Text),
		HTML:    []byte(msg.HTML),
	})
	if err == nil {
		metrics.MailDispatchTotal.WithLabelValues("smtp", "sent").Inc()
		return nil
	}

	metrics.MailDispatchTotal.WithLabelValues("smtp", "failed").Inc()
	server := m.servers.Servers[index]
	slog.Error("error when trying to send email", slog.String("error", err.Error()), slog.String("server", server.Address()))
	m.reconnect(index, pool)
	return fmt.Errorf("smtp send via %s: %w", server.Address(), err)
}

func (m *SMTPMailer) reconnect(index int, failed *smtppool.Pool) {
	fresh, err := connectToPool(m.servers.Servers[index])
	if err != nil {
		slog.Error("cannot reconnect pool", slog.String("error", err.Error()), slog.String("server", m.servers.Servers[index].Host))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pools[index] != failed {
		// someone else already swapped it
		fresh.Close()
		return
	}
	m.pools[index] = fresh
	failed.Close()
}

func (m *SMTPMailer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pools {
		if p != nil {
			p.Close()
		}
	}
}
