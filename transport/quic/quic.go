// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package quic provides a QUIC transport for block exchange connections. Each
// QUIC connection carries a single bidirectional stream, which is exposed as a
// net.Conn so that the muxer can run over it unchanged
package quic

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"
)

// ALPN is the application protocol negotiated during the TLS handshake
const ALPN = "blockswap"

const (
	// StreamAcceptTimeout limits how long an accepted connection may take to open its stream
	StreamAcceptTimeout = 10 * time.Second
	keepAlivePeriod     = 15 * time.Second
	maxIdleTimeout      = 60 * time.Second
)

func quicConfig() *quicgo.Config {
	return &quicgo.Config{
		KeepAlivePeriod: keepAlivePeriod,
		MaxIdleTimeout:  maxIdleTimeout,
	}
}

func selfSignedCert() (tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	template := x509.Certificate{
		SerialNumber: serial,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}

func serverTLSConfig() (*tls.Config, error) {
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func clientTLSConfig() *tls.Config {
	return &tls.Config{
		// Peers are identified by the public key exchanged in the handshake
		// mini-protocol, not by the certificate
		// #nosec G402
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
	}
}

// Listener accepts QUIC connections and returns the first stream of each as a net.Conn
type Listener struct {
	listener  *quicgo.Listener
	connChan  chan net.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	onceClose sync.Once
}

// Listen creates a QUIC listener on the given UDP address
func Listen(addr string) (*Listener, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quicgo.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		listener: ln,
		connChan: make(chan net.Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
	l.waitGroup.Add(1)
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	defer l.waitGroup.Done()
	// Accept unblocks once the listener is gone
	defer l.cancel()
	for {
		conn, err := l.listener.Accept(l.ctx)
		if err != nil {
			return
		}
		l.waitGroup.Add(1)
		go l.acceptStream(conn)
	}
}

func (l *Listener) acceptStream(conn *quicgo.Conn) {
	defer l.waitGroup.Done()
	ctx, cancel := context.WithTimeout(l.ctx, StreamAcceptTimeout)
	defer cancel()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream opened")
		return
	}
	select {
	case l.connChan <- newStreamConn(conn, stream):
	case <-l.ctx.Done():
		_ = conn.CloseWithError(0, "listener closed")
	}
}

// Accept waits for the next connection
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connChan:
		return conn, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

// Close stops the listener. Connections already accepted stay open
func (l *Listener) Close() error {
	var err error
	l.onceClose.Do(func() {
		l.cancel()
		err = l.listener.Close()
		l.waitGroup.Wait()
	})
	return err
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Dial connects to a QUIC listener and opens the connection stream
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := quicgo.DialAddr(ctx, addr, clientTLSConfig(), quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}
	return newStreamConn(conn, stream), nil
}

// streamConn adapts a QUIC stream and its connection to net.Conn
type streamConn struct {
	*quicgo.Stream
	conn      *quicgo.Conn
	onceClose sync.Once
}

func newStreamConn(conn *quicgo.Conn, stream *quicgo.Stream) *streamConn {
	return &streamConn{
		Stream: stream,
		conn:   conn,
	}
}

func (c *streamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *streamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes both directions of the stream and the QUIC connection
func (c *streamConn) Close() error {
	var err error
	c.onceClose.Do(func() {
		c.Stream.CancelRead(0)
		err = c.Stream.Close()
		_ = c.conn.CloseWithError(0, "")
	})
	return err
}
