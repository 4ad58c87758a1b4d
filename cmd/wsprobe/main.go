// wsprobe connects to a quoted websocket endpoint, subscribes to topics and
// prints every message it receives.
// Usage: go run ./cmd/wsprobe --url ws://localhost:8080/ws --topics stock:AKBNK,market
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/fanout"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	topics := flag.String("topics", "market", "comma-separated topics to subscribe to")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, *url, nil)
	dialCancel()
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("connected", "url", *url)

	for _, t := range strings.Split(*topics, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if err := send(conn, fanout.ActionSubscribe, fanout.TopicRequest{Topic: t}); err != nil {
			logger.Error("failed to subscribe", "topic", t, "error", err)
			os.Exit(1)
		}
	}

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	var received int
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("read failed", "error", err)
			}
			break
		}
		received++
		printMessage(data, *verbose, logger)
	}

	logger.Info("shutdown complete", "received", received)
}

func send(conn *websocket.Conn, action string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(fanout.Request{
		ID:     uuid.NewString(),
		Action: action,
		Data:   raw,
	})
}

func printMessage(data []byte, verbose bool, logger *slog.Logger) {
	var msg struct {
		fanout.Push
		Success *bool  `json:"success"`
		Error   string `json:"error"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("undecodable message", "error", err)
		return
	}

	if verbose {
		var v any
		json.Unmarshal(data, &v)
		out, _ := json.MarshalIndent(v, "", "  ")
		fmt.Printf("%s\n", out)
		return
	}

	switch {
	case msg.Success != nil:
		fmt.Printf("[RESPONSE] id=%s success=%t error=%q\n", msg.ID, *msg.Success, msg.Error)
	case msg.Type == fanout.TypeStockUpdate:
		var q struct {
			Symbol        string `json:"symbol"`
			Price         string `json:"price"`
			ChangePercent string `json:"changePercent"`
			Volume        int64  `json:"volume"`
		}
		remarshal(msg.Data, &q)
		fmt.Printf("[STOCK] symbol=%s price=%s change=%s%% vol=%d\n", q.Symbol, q.Price, q.ChangePercent, q.Volume)
	case msg.Type == fanout.TypeMarketUpdate:
		var ov struct {
			Gainers []json.RawMessage `json:"gainers"`
			Losers  []json.RawMessage `json:"losers"`
		}
		remarshal(msg.Data, &ov)
		fmt.Printf("[MARKET] gainers=%d losers=%d at=%s\n", len(ov.Gainers), len(ov.Losers), msg.Timestamp.Format(time.TimeOnly))
	case msg.Type == fanout.TypeNews:
		var n struct {
			Symbol   string `json:"symbol"`
			Headline string `json:"headline"`
		}
		remarshal(msg.Data, &n)
		fmt.Printf("[NEWS] topic=%s symbol=%s headline=%q\n", msg.Topic, n.Symbol, n.Headline)
	default:
		fmt.Printf("[%s] %s\n", strings.ToUpper(msg.Type), data)
	}
}

func remarshal(in, out any) {
	raw, _ := json.Marshal(in)
	json.Unmarshal(raw, out)
}
