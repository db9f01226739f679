package relay

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/net/websocket"
)

// wsConn keeps the WebSocket handler alive until the relay is done with
// the connection.
type wsConn struct {
	*websocket.Conn
	once sync.Once
	done chan struct{}
}

func (c *wsConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { close(c.done) })
	return err
}

// HandleWS is used to take WebSocket connections and send them to a
// NetListener to be accepted.
func HandleWS(l *NetListener, ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	conn := &wsConn{Conn: ws, done: make(chan struct{})}
	select {
	case l.accepted <- conn:
	case <-l.closed:
		ws.Close()
		return
	}
	<-conn.done
}

// ListenWS takes a TCP address and returns a NetListener with an
// HTTP+WebSocket server listening on the given address. WebSocket
// connections are taken at "/". When s is not nil, "/channels" reports its
// joined channels as JSON.
func ListenWS(addr string, s *Server) (*NetListener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	nl := &NetListener{
		Listener: l,
		accepted: make(chan io.ReadWriteCloser),
		errs:     make(chan error, 2),
		closed:   make(chan struct{}),
	}
	r := mux.NewRouter()
	if s != nil {
		r.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(s.Channels())
		}).Methods(http.MethodGet)
	}
	r.Handle("/", websocket.Handler(func(ws *websocket.Conn) {
		HandleWS(nl, ws)
	}))
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}
	go func() {
		nl.errs <- srv.Serve(l)
	}()
	return nl, nil
}
