package websocket

import "errors"

// Close codes and reasons the client uses.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006

	ReasonUserLeave      = "user_leave"
	ReasonPageUnload     = "page_unload"
	ReasonSessionExpired = "session_expired"
)

var (
	ErrNotOpen        = errors.New("websocket not open")
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// CloseEvent describes how a connection ended.
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
}

// Events are the lifecycle callbacks of one connection. Transports deliver
// them on the event loop, in order, and never after OnClose.
type Events struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(CloseEvent)
	OnError   func(error)
}

// Socket is one live connection.
type Socket interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// Transport opens connections. Open must not block on the network.
type Transport interface {
	Open(url string, events Events) (Socket, error)
}
