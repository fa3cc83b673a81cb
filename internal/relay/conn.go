package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

type incomeKind uint

const (
	connClosed incomeKind = iota
	readFailure
	readOK
)

type income struct {
	kind incomeKind
	msg  []byte
	err  error
}

// socket is a websocket with serialized writes.
type socket struct {
	conn *ws.Conn
	url  string

	writeMu sync.Mutex
}

func dial(ctx context.Context, url string) (*socket, error) {
	slog.Debug("dial agent", "url", url)

	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &socket{conn: conn, url: url}, nil
}

func (s *socket) write(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	slog.Debug("write ws", "msg", string(payload))
	return s.conn.WriteMessage(ws.TextMessage, payload)
}

func (s *socket) read() income {
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		if isClosed(err) {
			return income{kind: connClosed, err: err}
		}
		return income{kind: readFailure, err: err}
	}

	slog.Debug("read ws", "msg", string(msg))
	return income{kind: readOK, msg: msg}
}

// close sends a normal closure frame and drops the connection.
func (s *socket) close() error {
	s.writeMu.Lock()
	msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
	_ = s.conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure,
		ws.ClosePolicyViolation)
}
