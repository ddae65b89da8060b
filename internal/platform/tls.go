// Package platform implements the probe capabilities on a regular host
// (Linux workstation, CI runner). Mobile hosts supply their own.
package platform

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"vaultguard/internal/probe"
)

const DefaultTLSPort = 443

// PinPrefix marks a base64 SHA-256 digest of a certificate's
// SubjectPublicKeyInfo.
const PinPrefix = "sha256/"

// SPKIPin returns the pin of cert in "sha256/<base64>" form.
func SPKIPin(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return PinPrefix + base64.StdEncoding.EncodeToString(sum[:])
}

type handshakerOptions struct {
	port    int
	verbose bool
	// writer receives verbose lines (typically stderr) so structured output
	// on stdout stays clean.
	writer io.Writer
	dialer *net.Dialer
}

type HandshakerOption func(*handshakerOptions)

// WithPort sets the port used when the hostname carries none.
func WithPort(port int) HandshakerOption {
	return func(o *handshakerOptions) { o.port = port }
}

func WithVerbose(enabled bool, writer io.Writer) HandshakerOption {
	return func(o *handshakerOptions) {
		o.verbose = enabled
		o.writer = writer
	}
}

// WithNetDialer replaces the TCP dialer, mostly for tests.
func WithNetDialer(d *net.Dialer) HandshakerOption {
	return func(o *handshakerOptions) { o.dialer = d }
}

// TLSHandshaker completes a TLS handshake and reports the pins of the chain
// the server presented. It does not verify the chain against system roots:
// an intercepting proxy must still complete so the pin comparison can flag
// it.
type TLSHandshaker struct {
	port   int
	dialer *net.Dialer
}

// NewTLSHandshaker returns a probe.Handshaker. With verbose enabled the
// result logs one line per dial and per handshake result.
func NewTLSHandshaker(opts ...HandshakerOption) (probe.Handshaker, error) {
	o := &handshakerOptions{port: DefaultTLSPort}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.port <= 0 || o.port > 65535 {
		return nil, fmt.Errorf("tls handshaker: invalid port %d", o.port)
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}
	if o.dialer == nil {
		o.dialer = &net.Dialer{}
	}

	var h probe.Handshaker = &TLSHandshaker{port: o.port, dialer: o.dialer}
	if o.verbose {
		h = &loggingHandshaker{base: h, w: o.writer}
	}
	return h, nil
}

func (h *TLSHandshaker) address(hostname string) (host, addr string, err error) {
	if hostname == "" {
		return "", "", errors.New("hostname is empty")
	}
	if host, port, err := net.SplitHostPort(hostname); err == nil {
		return host, net.JoinHostPort(host, port), nil
	}
	return hostname, net.JoinHostPort(hostname, strconv.Itoa(h.port)), nil
}

func (h *TLSHandshaker) Handshake(ctx context.Context, hostname string) (probe.HandshakeState, error) {
	host, addr, err := h.address(hostname)
	if err != nil {
		return probe.HandshakeState{}, err
	}
	d := &tls.Dialer{
		NetDialer: h.dialer,
		Config: &tls.Config{
			ServerName:         host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // pins are compared by the caller
		},
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return probe.HandshakeState{}, fmt.Errorf("handshake with %s: %w", addr, err)
	}
	defer conn.Close()

	tc, ok := conn.(*tls.Conn)
	if !ok {
		return probe.HandshakeState{}, fmt.Errorf("handshake with %s: unexpected connection type %T", addr, conn)
	}
	certs := tc.ConnectionState().PeerCertificates
	st := probe.HandshakeState{ChainPins: make([]string, 0, len(certs))}
	for _, c := range certs {
		st.ChainPins = append(st.ChainPins, SPKIPin(c))
	}
	return st, nil
}

// loggingHandshaker wraps a handshaker and emits one line per attempt and
// result (including latency).
type loggingHandshaker struct {
	base probe.Handshaker
	w    io.Writer
}

func (h *loggingHandshaker) Handshake(ctx context.Context, hostname string) (probe.HandshakeState, error) {
	start := time.Now()
	if h.w != nil {
		_, _ = fmt.Fprintf(h.w, "[verbose] tls: dialing %s\n", hostname)
	}
	st, err := h.base.Handshake(ctx, hostname)
	dur := time.Since(start)
	if h.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(h.w, "[verbose] tls: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(h.w, "[verbose] tls: handshake complete, %d certificates (%s)\n", len(st.ChainPins), dur.Truncate(time.Millisecond))
		}
	}
	return st, err
}
