package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/ValentinKolb/pKV/rpc/transport/base"
	"github.com/gorilla/websocket"
)

// Path is the http path the websocket endpoint is served on
const Path = "/pkv"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn implements base.IFrameConn on a websocket connection.
// Each frame is one binary message whose first byte is the frame kind.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(base.MaxFrameSize + 1)
	return &wsConn{conn: conn}
}

func (c *wsConn) WriteFrame(kind uint8, data []byte) error {
	msg := make([]byte, 1+len(data))
	msg[0] = kind
	copy(msg[1:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (c *wsConn) ReadFrame() (uint8, []byte, error) {
	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 {
			return 0, nil, errors.New("empty websocket frame")
		}
		return msg[0], msg[1:], nil
	}
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// listener serves the websocket endpoint and hands out upgraded connections
type listener struct {
	server *http.Server
	ln     net.Listener
	conns  chan *wsConn
	done   chan struct{}
	once   sync.Once
}

func (l *listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		base.Logger.Debugf("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	select {
	case l.conns <- newConn(conn):
	case <-l.done:
		_ = conn.Close()
	}
}

func (l *listener) Accept() (base.IFrameConn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}

func (l *listener) Addr() string {
	return l.ln.Addr().String()
}

// connector implements the IConnector interface for websockets
type connector struct {
	dialer *websocket.Dialer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "ws"
}

func (c *connector) Dial(ctx context.Context, endpoint string) (base.IFrameConn, error) {
	conn, _, err := c.dialer.DialContext(ctx, URL(endpoint), nil)
	if err != nil {
		return nil, err
	}
	return newConn(conn), nil
}

func (c *connector) Listen(endpoint string) (base.IListener, error) {
	ln, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket listener: %w", err)
	}

	l := &listener{
		ln:    ln,
		conns: make(chan *wsConn),
		done:  make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(Path, l)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			base.Logger.Errorf("Websocket server on %s stopped: %v", endpoint, err)
		}
	}()
	return l, nil
}

// URL turns host:port into a websocket url. Full ws:// or wss:// urls are kept.
func URL(endpoint string) string {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint
	}
	return "ws://" + endpoint + Path
}

// --------------------------------------------------------------------------
// Network Factory Method
// --------------------------------------------------------------------------

// NewConnector creates the websocket connector
func NewConnector() base.IConnector {
	return &connector{dialer: &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}}
}

// NewNetwork creates a network over websockets
func NewNetwork(config transport.Config) transport.INetwork {
	return base.NewNetwork(NewConnector(), config)
}
