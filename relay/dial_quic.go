package relay

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPN is the protocol name relay QUIC connections negotiate.
const ALPN = "tabtalk-relay"

// DialTimeout bounds QUIC handshakes started by DialQUIC.
var DialTimeout = 10 * time.Second

// DialQUIC connects to a relay over QUIC. Relays listening with a generated
// certificate cannot be verified, so the certificate is not checked; use
// DialQUICConfig to supply a verifying config.
func DialQUIC(addr string) (io.ReadWriteCloser, error) {
	return DialQUICConfig(addr, &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{ALPN},
	})
}

// DialQUICConfig connects to a relay over QUIC with the given TLS config and
// opens the single stream the relay connection runs on.
func DialQUICConfig(addr string, tlsConf *tls.Config) (io.ReadWriteCloser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	// the peer only learns about a stream once data is sent on it
	if _, err := stream.Write([]byte("!")); err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	return &quicConn{conn: conn, Stream: stream}, nil
}

type quicConn struct {
	conn quic.Connection
	quic.Stream
}

func (c *quicConn) Close() error {
	c.Stream.CancelRead(0)
	c.Stream.Close()
	return c.conn.CloseWithError(0, "close connection")
}
