package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"go.lsp.dev/jsonrpc2"
)

// maxMessageSize bounds a single frame; image build logs arrive in large
// chunks.
const maxMessageSize = 4 << 20

// wsStream frames one JSON-RPC message per websocket text message.
type wsStream struct {
	conn *websocket.Conn
}

// NewStream wraps a websocket connection as a jsonrpc2.Stream. It is used by
// both ends of the channel.
func NewStream(conn *websocket.Conn) jsonrpc2.Stream {
	conn.SetReadLimit(maxMessageSize)
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(ctx context.Context) (jsonrpc2.Message, int64, error) {
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, 0, err
	}
	if typ != websocket.MessageText {
		return nil, int64(len(data)), fmt.Errorf("unexpected websocket message type %v", typ)
	}
	msg, err := jsonrpc2.DecodeMessage(data)
	return msg, int64(len(data)), err
}

func (s *wsStream) Write(ctx context.Context, msg jsonrpc2.Message) (int64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal message: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
