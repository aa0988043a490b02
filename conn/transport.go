// ABOUTME: Websocket realization of the Transport interface using gorilla/websocket.
// ABOUTME: DialWebsocket is the production Dialer wired into the connection manager.
package conn

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds how long a single outbound frame may block.
const writeTimeout = 10 * time.Second

type wsTransport struct {
	conn *websocket.Conn
}

// DialWebsocket opens a websocket connection to rawURL. It is the production
// Dialer for Manager.
func DialWebsocket(ctx context.Context, rawURL string) (Transport, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return &wsTransport{conn: c}, nil
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}
