package chain

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// HeadFeed follows eth_subscribe("newHeads") over a websocket endpoint and
// reports each new block number. It reconnects and resubscribes on failure.
type HeadFeed struct {
	url            string
	reconnectDelay time.Duration
	log            *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number string `json:"number"`
		} `json:"result"`
	} `json:"params"`
}

var newHeadsRequest = rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []any{"newHeads"}}

func NewHeadFeed(url string, reconnectDelay time.Duration, log *zap.Logger) *HeadFeed {
	if log == nil {
		log = zap.NewNop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	return &HeadFeed{url: url, reconnectDelay: reconnectDelay, log: log}
}

func (f *HeadFeed) Run(ctx context.Context, onHead func(uint64)) error {
	for {
		err := f.session(ctx, onHead)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logSessionError(err)
		f.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *HeadFeed) session(ctx context.Context, onHead func(uint64)) error {
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	payload, err := json.Marshal(newHeadsRequest)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return err
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		number, ok := parseHead(data)
		if ok && onHead != nil {
			onHead(number)
		}
	}
}

func parseHead(data []byte) (uint64, bool) {
	var msg rpcNotification
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, false
	}
	if msg.Method != "eth_subscription" || msg.Params.Result.Number == "" {
		return 0, false
	}
	number, err := hexutil.DecodeUint64(msg.Params.Result.Number)
	if err != nil {
		return 0, false
	}
	return number, true
}

func (f *HeadFeed) logSessionError(err error) {
	if err == nil {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			f.log.Info("head feed closed", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
	}
	f.log.Warn("head feed ended", zap.Error(err))
}

func (f *HeadFeed) resetConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close(websocket.StatusNormalClosure, "reset")
		f.conn = nil
	}
}
