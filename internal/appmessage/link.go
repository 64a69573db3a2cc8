package appmessage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

var (
	// ErrNotConnected is reported when a push is attempted with no watch attached.
	ErrNotConnected = errors.New("no watch connected")
	// ErrLinkClosed is reported for pushes outstanding when the connection drops.
	ErrLinkClosed = errors.New("watch link closed")
	// ErrNacked is reported when the watch rejects a push.
	ErrNacked = errors.New("message rejected by watch")
)

// session is one watch connection and the pushes awaiting its answer.
type session struct {
	conn    *websocket.Conn
	pending map[uint8]func(error)
}

// Link carries AppMessages between the companion service and a single watch
// connected over WebSocket. A newer connection replaces the current one.
type Link struct {
	manifest Manifest
	appUUID  uuid.UUID
	logger   *slog.Logger

	mu      sync.Mutex
	sess    *session
	nextTID uint8
	closed  bool
}

// NewLink creates a Link for the app described by m.
func NewLink(m Manifest, logger *slog.Logger) (*Link, error) {
	id, err := m.AppUUID()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{manifest: m, appUUID: id, logger: logger}, nil
}

// Handler returns the WebSocket endpoint the watch connects to.
// Any origin is accepted; the endpoint is meant for loopback use.
func (l *Link) Handler() http.Handler {
	return websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   l.serve,
	}
}

// Connected reports whether a watch is attached.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess != nil
}

// Push sends payload to the watch and returns immediately. done is called
// once with the outcome, from another goroutine for network results. A push
// the watch never answers never completes.
func (l *Link) Push(payload map[string]any, done func(error)) {
	dict, err := EncodePayload(payload, l.manifest)
	if err != nil {
		done(fmt.Errorf("encoding app message: %w", err))
		return
	}

	l.mu.Lock()
	sess := l.sess
	if sess == nil {
		l.mu.Unlock()
		done(ErrNotConnected)
		return
	}
	tid := l.nextTID
	if _, busy := sess.pending[tid]; busy {
		l.mu.Unlock()
		done(fmt.Errorf("transaction %d still outstanding", tid))
		return
	}
	l.nextTID++
	sess.pending[tid] = done
	l.mu.Unlock()

	data, err := Frame{Command: CmdPush, TransactionID: tid, UUID: l.appUUID, Dict: dict}.MarshalBinary()
	if err != nil {
		l.resolve(sess, tid, fmt.Errorf("encoding frame: %w", err))
		return
	}

	go func() {
		if err := websocket.Message.Send(sess.conn, data); err != nil {
			l.resolve(sess, tid, fmt.Errorf("writing to watch: %w", err))
		}
	}()
}

// Close drops the current connection and refuses new ones. Outstanding
// pushes complete with ErrLinkClosed.
func (l *Link) Close() error {
	l.mu.Lock()
	l.closed = true
	sess := l.sess
	l.mu.Unlock()

	if sess != nil {
		return sess.conn.Close()
	}
	return nil
}

func (l *Link) serve(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame

	sess := &session{conn: ws, pending: make(map[uint8]func(error))}
	if !l.attach(sess) {
		ws.Close()
		return
	}
	l.logger.Info("watch connected", "remote", ws.Request().RemoteAddr)

	for {
		var data []byte
		if err := websocket.Message.Receive(ws, &data); err != nil {
			break
		}
		l.handleFrame(sess, data)
	}

	l.detach(sess)
	ws.Close()
	l.logger.Info("watch disconnected")
}

func (l *Link) attach(sess *session) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	prev := l.sess
	l.sess = sess
	l.mu.Unlock()

	if prev != nil {
		l.logger.Info("replacing previous watch connection")
		prev.conn.Close()
	}
	return true
}

func (l *Link) detach(sess *session) {
	l.mu.Lock()
	if l.sess == sess {
		l.sess = nil
	}
	pending := sess.pending
	sess.pending = make(map[uint8]func(error))
	l.mu.Unlock()

	for _, done := range pending {
		done(ErrLinkClosed)
	}
}

func (l *Link) resolve(sess *session, tid uint8, err error) {
	l.mu.Lock()
	done, ok := sess.pending[tid]
	delete(sess.pending, tid)
	l.mu.Unlock()

	if ok {
		done(err)
	}
}

func (l *Link) handleFrame(sess *session, data []byte) {
	f, err := ParseFrame(data)
	if err != nil {
		l.logger.Warn("dropping malformed frame from watch", "error", err)
		return
	}

	switch f.Command {
	case CmdAck:
		l.resolve(sess, f.TransactionID, nil)
	case CmdNack:
		l.resolve(sess, f.TransactionID, ErrNacked)
	case CmdPush:
		reply := CmdAck
		if f.UUID != l.appUUID {
			l.logger.Warn("push from watch for another app", "uuid", f.UUID)
			reply = CmdNack
		} else if payload, err := DecodePayload(f.Dict, l.manifest); err != nil {
			l.logger.Warn("undecodable push from watch", "error", err)
			reply = CmdNack
		} else {
			l.logger.Info("message from watch", "payload", payload)
		}
		out, _ := Frame{Command: reply, TransactionID: f.TransactionID}.MarshalBinary()
		if err := websocket.Message.Send(sess.conn, out); err != nil {
			l.logger.Warn("replying to watch", "error", err)
		}
	}
}
