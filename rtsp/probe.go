package rtsp

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAuthFailed means the device understood the handshake and
	// rejected the credential. The secret is wrong; if the device
	// supports the other secret kind, callers fall back to it.
	ErrAuthFailed = errors.New("rtsp auth rejected")
	// ErrDevice means the device answered but refused the request for a
	// reason unrelated to credentials.
	ErrDevice = errors.New("rtsp device error")
	// ErrTransport wraps connection-level failures. Retryable.
	ErrTransport = errors.New("rtsp transport failure")
)

const defaultPort = 554

// Prober runs DESCRIBE credential checks. The zero value is usable; a
// Timeout of zero falls back to ten seconds per probe.
type Prober struct {
	Timeout     time.Duration
	DefaultPort int
}

// NewProber returns a Prober with explicit bounds.
func NewProber(timeout time.Duration, port int) *Prober {
	return &Prober{Timeout: timeout, DefaultPort: port}
}

func (p *Prober) timeout() time.Duration {
	if p == nil || p.Timeout <= 0 {
		return 10 * time.Second
	}
	return p.Timeout
}

func (p *Prober) port() int {
	if p == nil || p.DefaultPort <= 0 {
		return defaultPort
	}
	return p.DefaultPort
}

type response struct {
	status int
	header map[string]string
}

// Probe confirms the device accepts the credential: one DESCRIBE, and on
// a 401 challenge a single authenticated retry. No media is set up and
// the connection closes immediately after the status line is read.
//
// nil means accepted; ErrAuthFailed, ErrDevice and ErrTransport classify
// the failure for the caller's fallback policy.
func (p *Prober) Probe(ctx context.Context, address, username, secret string) error {
	if address == "" {
		return fmt.Errorf("%w: empty address", ErrTransport)
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(p.port()))
	}

	deadline := time.Now().Add(p.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	uri := "rtsp://" + address + "/"
	reader := bufio.NewReader(conn)

	resp, err := describe(conn, reader, uri, 1, "")
	if err != nil {
		return err
	}
	if resp.status == 401 {
		auth, err := authorization(resp.header["www-authenticate"], uri, username, secret)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDevice, err)
		}
		resp, err = describe(conn, reader, uri, 2, auth)
		if err != nil {
			return err
		}
	}

	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == 401 || resp.status == 403:
		return ErrAuthFailed
	default:
		return fmt.Errorf("%w: status %d", ErrDevice, resp.status)
	}
}

func authorization(header, uri, username, secret string) (string, error) {
	if header == "" {
		return "", errors.New("401 without WWW-Authenticate")
	}
	ch, err := parseChallenge(header)
	if err != nil {
		return "", err
	}
	if ch.scheme == "Basic" {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+secret)), nil
	}
	return digestAuthorization(ch, "DESCRIBE", uri, username, secret), nil
}

func describe(conn net.Conn, reader *bufio.Reader, uri string, cseq int, auth string) (*response, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "DESCRIBE %s RTSP/1.0\r\n", uri)
	fmt.Fprintf(&b, "CSeq: %d\r\n", cseq)
	b.WriteString("Accept: application/sdp\r\n")
	if auth != "" {
		fmt.Fprintf(&b, "Authorization: %s\r\n", auth)
	}
	b.WriteString("\r\n")

	if _, err := conn.Write([]byte(b.String())); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return readResponse(reader)
}

func readResponse(reader *bufio.Reader) (*response, error) {
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	parts := strings.SplitN(strings.TrimSpace(statusLine), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "RTSP/") {
		return nil, fmt.Errorf("%w: malformed status line %q", ErrDevice, strings.TrimSpace(statusLine))
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed status code", ErrDevice)
	}

	resp := &response{status: status, header: make(map[string]string)}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return resp, nil
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		resp.header[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
}
