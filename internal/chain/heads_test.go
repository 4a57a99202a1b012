package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestParseHead(t *testing.T) {
	number, ok := parseHead([]byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0x1","result":{"number":"0x1b4"}}}`))
	if !ok || number != 436 {
		t.Fatalf("expected 436, got %d ok=%v", number, ok)
	}
	if _, ok := parseHead([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`)); ok {
		t.Fatalf("subscription ack is not a head")
	}
}

func TestHeadFeedSubscribesAndReports(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var req map[string]any
		if err := json.Unmarshal(data, &req); err != nil || req["method"] != "eth_subscribe" {
			t.Errorf("unexpected subscribe request %s", data)
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc"}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{"number":"0x10"}}}`))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewHeadFeed(wsURL, 10*time.Millisecond, zap.NewNop())
	heads := make(chan uint64, 1)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = feed.Run(runCtx, func(n uint64) {
			select {
			case heads <- n:
			default:
			}
		})
	}()

	select {
	case n := <-heads:
		if n != 16 {
			t.Fatalf("expected head 16, got %d", n)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for head")
	}
}
