package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	// sendBuffer is how many frames may wait for the writer goroutine.
	sendBuffer = 64
)

// GorillaTransport dials real websocket connections. Callbacks are handed to
// Post so they run on the event loop; a nil Post runs them on the reader
// goroutine.
type GorillaTransport struct {
	Post   func(func()) bool
	Header http.Header
	Dialer *websocket.Dialer
}

func NewGorillaTransport(post func(func()) bool, userAgent string) *GorillaTransport {
	header := http.Header{}
	if userAgent != "" {
		header.Set("User-Agent", userAgent)
	}
	return &GorillaTransport{
		Post:   post,
		Header: header,
		Dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  handshakeTimeout,
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: false,
		},
	}
}

func (t *GorillaTransport) Open(url string, events Events) (Socket, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newGorillaSocket(cancel)
	go t.run(ctx, s, url, events)
	return s, nil
}

func (t *GorillaTransport) post(f func()) {
	if t.Post == nil {
		f()
		return
	}
	t.Post(f)
}

func (t *GorillaTransport) run(ctx context.Context, s *gorillaSocket, url string, events Events) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, url, t.Header)
	if err != nil {
		log.Printf("Error dialing websocket %s: %v", url, err)
		t.post(func() {
			if events.OnError != nil {
				events.OnError(err)
			}
			events.OnClose(CloseEvent{Code: CloseAbnormal, Reason: err.Error()})
		})
		return
	}

	if !s.attach(conn) {
		conn.Close()
		t.post(func() { events.OnClose(CloseEvent{Code: CloseNormal, WasClean: true}) })
		return
	}
	t.post(events.OnOpen)

	defer close(s.done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ev := closeEvent(err)
			conn.Close()
			t.post(func() { events.OnClose(ev) })
			return
		}
		t.post(func() { events.OnMessage(data) })
	}
}

func closeEvent(err error) CloseEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseEvent{Code: ce.Code, Reason: ce.Text, WasClean: ce.Code != websocket.CloseAbnormalClosure}
	}
	return CloseEvent{Code: CloseAbnormal, Reason: err.Error()}
}

// gorillaSocket hands frames to a writer goroutine so a stalled peer never
// blocks the event loop.
type gorillaSocket struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	cancel   context.CancelFunc
	out      chan []byte
	shutdown chan []byte
	done     chan struct{}
}

func newGorillaSocket(cancel context.CancelFunc) *gorillaSocket {
	return &gorillaSocket{
		cancel:   cancel,
		out:      make(chan []byte, sendBuffer),
		shutdown: make(chan []byte, 1),
		done:     make(chan struct{}),
	}
}

func (s *gorillaSocket) attach(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	go s.write(conn)
	return true
}

// write sends queued frames until the reader stops or Close asks for a close
// frame. Frames queued before Close are flushed first.
func (s *gorillaSocket) write(conn *websocket.Conn) {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.out:
			if !writeFrame(conn, data) {
				return
			}
		case frame := <-s.shutdown:
			if !s.flush(conn) {
				return
			}
			deadline := time.Now().Add(writeWait)
			_ = conn.SetReadDeadline(deadline)
			if err := conn.WriteControl(websocket.CloseMessage, frame, deadline); err != nil {
				log.Printf("Error writing websocket close frame: %v", err)
			}
			return
		}
	}
}

func (s *gorillaSocket) flush(conn *websocket.Conn) bool {
	for {
		select {
		case data := <-s.out:
			if !writeFrame(conn, data) {
				return false
			}
		default:
			return true
		}
	}
}

func writeFrame(conn *websocket.Conn, data []byte) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error writing websocket frame: %v", err)
		conn.Close()
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("Error writing websocket frame: %v", err)
		conn.Close()
		return false
	}
	return true
}

// Send queues data for the writer. It never waits for the network.
func (s *gorillaSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return ErrNotOpen
	}
	select {
	case s.out <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close queues a close frame; the peer gets writeWait to answer before the
// reader gives up.
func (s *gorillaSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if s.conn == nil {
		return nil
	}
	s.shutdown <- websocket.FormatCloseMessage(code, reason)
	return nil
}
