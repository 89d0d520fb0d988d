package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketChannel subscribes to the reference server's
// /lists/{list}/events endpoint.
type WebsocketChannel struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	Dialer  *websocket.Dialer
}

// Subscribe implements Channel.
func (w WebsocketChannel) Subscribe(ctx context.Context, listID string) (Subscription, error) {
	u, err := EventsURL(w.BaseURL, listID)
	if err != nil {
		return nil, err
	}
	return DialWebsocket(ctx, w.Dialer, u)
}

// EventsURL maps a server base URL to the websocket endpoint of a list.
func EventsURL(base, listID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/lists/" + url.PathEscape(listID) + "/events"
	return u.String(), nil
}

// DialWebsocket opens a websocket subscription. A nil dialer uses
// websocket.DefaultDialer.
func DialWebsocket(ctx context.Context, dialer *websocket.Dialer, rawURL string) (Subscription, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", rawURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return NewWebsocketSubscription(conn), nil
}

// NewWebsocketSubscription wraps an established connection.
func NewWebsocketSubscription(conn *websocket.Conn) Subscription {
	s := &wsSub{conn: conn, msgs: make(chan wsRead), closed: make(chan struct{})}
	go s.read()
	return s
}

type wsRead struct {
	raw []byte
	err error
}

// wsSub moves the blocking ReadMessage onto its own goroutine so Next can
// honour ctx.
type wsSub struct {
	conn *websocket.Conn
	msgs chan wsRead

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *wsSub) read() {
	for {
		mt, p, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrClosed
			}
			select {
			case s.msgs <- wsRead{err: err}:
			case <-s.closed:
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		select {
		case s.msgs <- wsRead{raw: p}:
		case <-s.closed:
			return
		}
	}
}

func (s *wsSub) Next(ctx context.Context) ([]byte, error) {
	select {
	case r := <-s.msgs:
		return r.raw, r.err
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *wsSub) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
		err = s.conn.Close()
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
	})
	return err
}
