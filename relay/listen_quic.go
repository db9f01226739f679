package relay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"io"
	"math/big"
	"net"

	"github.com/quic-go/quic-go"
)

// QUICListener accepts relay connections over QUIC, one stream per
// connection.
type QUICListener struct {
	l *quic.Listener
}

// ListenQUIC creates a QUIC listener at the given address. With a nil
// tlsConf a self-signed certificate is generated.
func ListenQUIC(addr string, tlsConf *tls.Config) (*QUICListener, error) {
	if tlsConf == nil {
		var err error
		tlsConf, err = generateTLSConfig()
		if err != nil {
			return nil, err
		}
	}
	l, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	return &QUICListener{l: l}, nil
}

// Accept waits for the next connection and its stream.
func (l *QUICListener) Accept() (io.ReadWriteCloser, error) {
	ctx := context.Background()
	for {
		conn, err := l.l.Accept(ctx)
		if err != nil {
			return nil, err
		}
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			conn.CloseWithError(0, "")
			continue
		}
		header := make([]byte, 1)
		if _, err := io.ReadFull(stream, header); err != nil {
			conn.CloseWithError(0, "")
			continue
		}
		return &quicConn{conn: conn, Stream: stream}, nil
	}
}

func (l *QUICListener) Close() error {
	return l.l.Close()
}

func (l *QUICListener) Addr() net.Addr {
	return l.l.Addr()
}

func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{ALPN},
	}, nil
}
