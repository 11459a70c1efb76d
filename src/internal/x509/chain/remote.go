// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509chain

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrNoPeerCertificates is returned when a TLS server presents no certificate.
var ErrNoPeerCertificates = errors.New("x509chain: no certificates received from server")

// FetchPeerCertificates completes a TLS handshake with host and returns the
// certificates the server presented, leaf first. The chain is not verified
// here; pass the leaf to [ValidationContext.ValidateCertificate] with the
// rest as intermediates.
func FetchPeerCertificates(ctx context.Context, host string, port int, timeout time.Duration) ([]*x509.Certificate, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		// Only the presented certificates are wanted.
		Config: &tls.Config{InsecureSkipVerify: true, ServerName: host},
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	peer := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(peer) == 0 {
		return nil, ErrNoPeerCertificates
	}
	return peer, nil
}
