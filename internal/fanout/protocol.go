package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
)

// Client actions.
const (
	ActionSubscribe         = "subscribe"
	ActionUnsubscribe       = "unsubscribe"
	ActionGetStockData      = "getStockData"
	ActionGetMarketOverview = "getMarketOverview"
)

// Push message types.
const (
	TypeStockUpdate  = "stockUpdate"
	TypeMarketUpdate = "marketUpdate"
	TypeNews         = "news"
)

// ErrInvalidRequest is reported for payloads that do not parse as a request.
var ErrInvalidRequest = errors.New("Invalid request format")

// Request is a client request envelope.
type Request struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response acknowledges a Request.
type Response struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Push is an unsolicited message delivered to topic members.
type Push struct {
	Type      string    `json:"type"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicRequest is the data of subscribe and unsubscribe. Either Topic is
// set, or Type ("stock", "market", "news") with an optional Symbol.
type TopicRequest struct {
	Topic  string `json:"topic,omitempty"`
	Type   string `json:"type,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// SymbolRequest is the data of getStockData.
type SymbolRequest struct {
	Symbol string `json:"symbol"`
}

// Topic names a broadcast channel: stock:<SYMBOL>, market, news:<SYMBOL>
// or news:general.
type Topic string

const (
	TopicMarket      Topic = "market"
	TopicNewsGeneral Topic = "news:general"
)

// StockTopic returns the topic of a symbol's quote updates.
func StockTopic(symbol string) Topic {
	return Topic("stock:" + model.NormalizeSymbol(symbol))
}

// NewsTopic returns the news topic of symbol, or news:general when symbol is
// empty.
func NewsTopic(symbol string) Topic {
	sym := model.NormalizeSymbol(symbol)
	if sym == "" {
		return TopicNewsGeneral
	}
	return Topic("news:" + sym)
}

// StockSymbol returns the symbol of a stock topic.
func (t Topic) StockSymbol() (string, bool) {
	return strings.CutPrefix(string(t), "stock:")
}

// ParseTopic validates and normalizes a topic name.
func ParseTopic(s string) (Topic, error) {
	s = strings.TrimSpace(s)
	kind, arg, hasArg := strings.Cut(s, ":")
	switch strings.ToLower(kind) {
	case "market":
		if hasArg {
			break
		}
		return TopicMarket, nil
	case "stock":
		if sym := model.NormalizeSymbol(arg); sym != "" {
			return StockTopic(sym), nil
		}
	case "news":
		if strings.EqualFold(strings.TrimSpace(arg), "general") {
			return TopicNewsGeneral, nil
		}
		if sym := model.NormalizeSymbol(arg); sym != "" {
			return NewsTopic(sym), nil
		}
	}
	return "", fmt.Errorf("unknown topic %q", s)
}

// topic resolves a TopicRequest.
func (r TopicRequest) topic() (Topic, error) {
	if r.Topic != "" {
		return ParseTopic(r.Topic)
	}
	switch strings.ToLower(r.Type) {
	case "market":
		return TopicMarket, nil
	case "stock":
		if model.NormalizeSymbol(r.Symbol) == "" {
			return "", errors.New("symbol is required")
		}
		return StockTopic(r.Symbol), nil
	case "news":
		return NewsTopic(r.Symbol), nil
	}
	return "", fmt.Errorf("unknown subscription type %q", r.Type)
}
