package mail

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// smtpSink is a minimal SMTP server that records one transaction per connection.
type smtpSink struct {
	ln       net.Listener
	mu       sync.Mutex
	from     string
	rcpts    []string
	data     string
	rejectTo string
}

func newSMTPSink(t *testing.T, rejectTo string) *smtpSink {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &smtpSink{ln: ln, rejectTo: rejectTo}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *smtpSink) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpSink) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
	reply("220 sink ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250 sink")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			s.mu.Lock()
			s.from = strings.Trim(cmd[len("MAIL FROM:"):], "<> ")
			s.mu.Unlock()
			reply("250 ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			addr := strings.Trim(cmd[len("RCPT TO:"):], "<> ")
			if addr == s.rejectTo {
				reply("550 no such user")
				continue
			}
			s.mu.Lock()
			s.rcpts = append(s.rcpts, addr)
			s.mu.Unlock()
			reply("250 ok")
		case upper == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func (s *smtpSink) snapshot() (string, []string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from, append([]string(nil), s.rcpts...), s.data
}

func TestSend_DeliversToAllRecipients(t *testing.T) {
	sink := newSMTPSink(t, "")
	m := New(sink.ln.Addr().String(), "ci-1")

	err := m.Send(context.Background(), "devnull@ncsa.illinois.edu",
		[]string{"ops@example.org", "dev@example.org"},
		"[PROD] Brown Dog Tests Failures", "Host         : ci-1\nFailures     : 1\n")
	require.NoError(t, err)

	from, rcpts, data := sink.snapshot()
	assert.Equal(t, "devnull@ncsa.illinois.edu", from)
	assert.Equal(t, []string{"ops@example.org", "dev@example.org"}, rcpts)
	assert.Contains(t, data, "From: \"ci-1\" <devnull@ncsa.illinois.edu>\r\n")
	assert.Contains(t, data, "To: ops@example.org, dev@example.org\r\n")
	assert.Contains(t, data, "Subject: [PROD] Brown Dog Tests Failures\r\n")
	assert.Contains(t, data, "Failures     : 1\r\n")
}

func TestSend_NoRecipients(t *testing.T) {
	m := New("127.0.0.1:1", "h")
	assert.NoError(t, m.Send(context.Background(), "a@b", nil, "s", "b"))
}

func TestSend_RejectedRecipient(t *testing.T) {
	sink := newSMTPSink(t, "ghost@example.org")
	m := New(sink.ln.Addr().String(), "h")
	err := m.Send(context.Background(), "a@example.org", []string{"ghost@example.org"}, "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RCPT TO ghost@example.org")
}

func TestSend_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := New(addr, "h")
	m.Timeout = time.Second
	err = m.Send(context.Background(), "a@example.org", []string{"b@example.org"}, "s", "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestNew_DefaultPort(t *testing.T) {
	assert.Equal(t, "smtp.example.org:25", New("smtp.example.org", "h").Addr)
	assert.Equal(t, "smtp.example.org:2525", New("smtp.example.org:2525", "h").Addr)
}

func TestMessage_CRLF(t *testing.T) {
	msg := string(Message("h", "f@x", []string{"t@x"}, "s", "a\nb\r\nc"))
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\na\r\nb\r\nc"))
}
