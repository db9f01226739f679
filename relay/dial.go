package relay

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/progrium/tabtalk-go/codec"
)

// A Dialer connects to a relay at addr.
type Dialer func(addr string) (io.ReadWriteCloser, error)

// Dialers is map of transport strings to Dialers
// and includes all builtin transports
var Dialers map[string]Dialer

func init() {
	Dialers = map[string]Dialer{
		"tcp":  DialTCP,
		"unix": DialUnix,
		"ws":   DialWS,
		"quic": DialQUIC,
		"stdio": func(_ string) (io.ReadWriteCloser, error) {
			return DialStdio()
		},
	}
}

// Dial connects to a relay using a registered transport and returns a Client.
// Available transports are "tcp", "unix", "ws", "quic" and "stdio". In the case
// of "stdio", the addr can be left an empty string.
func Dial(transport, addr string, c codec.Codec, logger *slog.Logger) (*Client, error) {
	d, ok := Dialers[transport]
	if !ok {
		return nil, fmt.Errorf("relay: transport '%s' not in available in Dialers", transport)
	}
	rwc, err := d(addr)
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s %s: %w", transport, addr, err)
	}
	return NewClient(rwc, c, logger), nil
}
