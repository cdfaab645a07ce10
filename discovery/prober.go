// discovery/prober.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ProbeState is the position of a probe in the mail-submission handshake.
type ProbeState int

const (
	StateConnecting ProbeState = iota
	StateIdentifying
	StateDeclaringSender
	StateDeclaringRecipient
	StateTerminal
)

func (s ProbeState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentifying:
		return "identifying"
	case StateDeclaringSender:
		return "declaring_sender"
	case StateDeclaringRecipient:
		return "declaring_recipient"
	default:
		return "terminal"
	}
}

// Probe classifies one address against one exchanger.
type Probe interface {
	Verify(ctx context.Context, mxHost, address string) VerificationResult
}

// ProberConfig holds the knobs of a Prober. Zero values get defaults.
type ProberConfig struct {
	HeloDomain string
	MailFrom   string
	Port       string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// MaxProbeRetries caps how often one address is retried after a rate-limit reply.
const MaxProbeRetries = 1

// Prober runs the SMTP handshake up to RCPT TO and reads the verdict.
type Prober struct {
	cfg    ProberConfig
	dialer *net.Dialer
	log    *logrus.Entry
	calls  atomic.Int64
}

func NewProber(cfg ProberConfig, log *logrus.Entry) *Prober {
	if cfg.HeloDomain == "" {
		cfg.HeloDomain = "verify.mailfinder.local"
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = "probe@" + cfg.HeloDomain
	}
	if cfg.Port == "" {
		cfg.Port = "25"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Retries > MaxProbeRetries {
		cfg.Retries = MaxProbeRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Prober{cfg: cfg, dialer: &net.Dialer{}, log: log}
}

// Calls counts handshakes started, retries included.
func (p *Prober) Calls() int64 {
	return p.calls.Load()
}

// Verify runs the probe, retrying the whole exchange only when the server
// answered with a rate-limit code.
func (p *Prober) Verify(ctx context.Context, mxHost, address string) VerificationResult {
	var res VerificationResult
	for attempt := 0; ; attempt++ {
		p.calls.Add(1)
		res = p.probeOnce(ctx, mxHost, address)
		if !res.RateLimited || attempt >= p.cfg.Retries {
			break
		}

		p.log.WithFields(logrus.Fields{
			"mx":      mxHost,
			"address": address,
			"code":    res.ResponseCode,
		}).Debug("rate limited, retrying probe")

		t := time.NewTimer(p.cfg.RetryDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return res
		}
	}
	return res
}

func (p *Prober) probeOnce(ctx context.Context, mxHost, address string) VerificationResult {
	res := VerificationResult{Address: address, State: StateConnecting, Outcome: Inconclusive}

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := p.dialer.DialContext(dctx, "tcp", net.JoinHostPort(mxHost, p.cfg.Port))
	if err != nil {
		return failed(res, err)
	}
	defer conn.Close()

	// One deadline governs the whole exchange; cancellation pulls it in.
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(dctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	tp := textproto.NewConn(conn)
	defer tp.Close()

	m := &probeMachine{tp: tp, cfg: p.cfg, address: address, res: res}
	m.run()
	if m.writable {
		m.quit()
	}
	return m.res
}

// probeMachine walks ProbeState with a single blocking exchange per state.
type probeMachine struct {
	tp       *textproto.Conn
	cfg      ProberConfig
	address  string
	res      VerificationResult
	writable bool
}

func (m *probeMachine) run() {
	for m.res.State != StateTerminal {
		var (
			code int
			msg  string
			err  error
		)

		switch m.res.State {
		case StateConnecting:
			code, msg, err = m.read()
		case StateIdentifying:
			code, msg, err = m.exchange("EHLO %s", m.cfg.HeloDomain)
			if err == nil && (code == 500 || code == 502) {
				code, msg, err = m.exchange("HELO %s", m.cfg.HeloDomain)
			}
		case StateDeclaringSender:
			code, msg, err = m.exchange("MAIL FROM:<%s>", m.cfg.MailFrom)
		case StateDeclaringRecipient:
			code, msg, err = m.exchange("RCPT TO:<%s>", m.address)
		}

		if err != nil {
			m.writable = false
			m.res = failed(m.res, err)
			return
		}
		m.writable = true
		m.step(code, msg)
	}
}

// step applies the transition rule for one reply.
func (m *probeMachine) step(code int, msg string) {
	m.res.ResponseCode = code
	m.res.Message = msg

	if isRateLimitCode(code) {
		m.res.RateLimited = true
		m.terminate(Inconclusive)
		return
	}

	switch m.res.State {
	case StateConnecting:
		if code == 220 {
			m.res.State = StateIdentifying
			return
		}
	case StateIdentifying:
		if code/100 == 2 {
			m.res.State = StateDeclaringSender
			return
		}
	case StateDeclaringSender:
		if code/100 == 2 {
			m.res.State = StateDeclaringRecipient
			return
		}
	case StateDeclaringRecipient:
		switch {
		case code/100 == 2:
			m.terminate(Accepted)
			return
		case isMailboxRejectCode(code):
			m.terminate(Rejected)
			return
		}
	}
	m.terminate(Inconclusive)
}

func (m *probeMachine) terminate(o Outcome) {
	m.res.Outcome = o
	m.res.State = StateTerminal
}

func (m *probeMachine) exchange(format string, args ...any) (int, string, error) {
	if err := m.tp.PrintfLine(format, args...); err != nil {
		return 0, "", err
	}
	return m.read()
}

func (m *probeMachine) read() (int, string, error) {
	// Expect code 0 disables textproto's own check; step classifies every reply.
	code, msg, err := m.tp.ReadResponse(0)
	if err != nil {
		var perr textproto.ProtocolError
		if errors.As(err, &perr) {
			return 0, "", fmt.Errorf("malformed reply: %w", err)
		}
		return 0, "", err
	}
	return code, strings.TrimSpace(msg), nil
}

func (m *probeMachine) quit() {
	if err := m.tp.PrintfLine("QUIT"); err == nil {
		_, _, _ = m.tp.ReadResponse(0)
	}
}

func failed(res VerificationResult, err error) VerificationResult {
	res.Outcome = Inconclusive
	res.ResponseCode = 0
	res.Message = err.Error()
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		res.Message = "timeout: " + err.Error()
	}
	return res
}

func isRateLimitCode(code int) bool {
	return code == 421 || code == 450 || code == 452
}

func isMailboxRejectCode(code int) bool {
	switch code {
	case 550, 551, 553, 554:
		return true
	}
	return false
}
