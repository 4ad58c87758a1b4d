package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/events"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/metrics"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/scheduler"
)

// Conn is a client transport.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Coverage keeps subscribed symbols polled.
type Coverage interface {
	Cover(symbol string)
	Uncover(symbol string)
}

// QuoteSource serves direct pulls.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (model.Quote, error)
	Overview(ctx context.Context, symbols, indices []string, topN int) (model.MarketOverview, error)
}

var ErrUnknownClient = errors.New("fanout: unknown client")

// Config holds hub configuration.
type Config struct {
	MarketSymbols  []string      // Symbols ranked in market overviews
	IndexSymbols   []string      // Symbols reported as indices
	TopN           int           // Entries per overview ranking (default: 5)
	RequestTimeout time.Duration // Deadline for direct pulls (default: 10s)
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(h *Hub) {
		h.metrics = r
	}
}

type client struct {
	conn        Conn
	topics      map[Topic]struct{}
	connectedAt time.Time
}

// Hub routes pushes to clients by topic membership.
type Hub struct {
	cfg      Config
	quotes   QuoteSource
	coverage Coverage
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	// coverMu orders membership changes with their Cover/Uncover calls, so
	// the coverage always ends in the state the last change left. It is
	// taken before mu.
	coverMu sync.Mutex

	mu      sync.RWMutex
	clients map[string]*client
	topics  map[Topic]map[string]struct{}

	delivered atomic.Int64
	failed    atomic.Int64
}

// NewHub creates a hub. coverage may be nil.
func NewHub(cfg Config, quotes QuoteSource, coverage Coverage, opts ...Option) *Hub {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	h := &Hub{
		cfg:      cfg,
		quotes:   quotes,
		coverage: coverage,
		metrics:  metrics.Nop{},
		logger:   slog.Default(),
		now:      time.Now,
		clients:  make(map[string]*client),
		topics:   make(map[Topic]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "fanout")
	return h
}

// Connect registers conn with no subscriptions.
func (h *Hub) Connect(conn Conn) {
	h.mu.Lock()
	h.clients[conn.ID()] = &client{
		conn:        conn,
		topics:      make(map[Topic]struct{}),
		connectedAt: h.now(),
	}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", "client_id", conn.ID(), "clients", total)
}

// Disconnect removes a client and every membership it held.
func (h *Hub) Disconnect(id, reason string) {
	h.coverMu.Lock()
	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		h.coverMu.Unlock()
		return
	}
	delete(h.clients, id)

	var uncovered []string
	topics := make([]Topic, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
		if h.leaveLocked(id, t) {
			if sym, ok := t.StockSymbol(); ok {
				uncovered = append(uncovered, sym)
			}
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	h.uncover(uncovered...)
	h.coverMu.Unlock()
	c.conn.Close()

	h.logger.Info("client disconnected",
		"client_id", id,
		"reason", reason,
		"topics_cleaned", len(topics),
		"clients", total,
	)
}

// Subscribe adds id to topic.
func (h *Hub) Subscribe(id string, topic Topic) error {
	h.coverMu.Lock()
	defer h.coverMu.Unlock()

	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownClient
	}
	if _, ok := c.topics[topic]; ok {
		h.mu.Unlock()
		return fmt.Errorf("Already subscribed to %s", topic)
	}

	members, ok := h.topics[topic]
	first := !ok
	if first {
		members = make(map[string]struct{})
		h.topics[topic] = members
	}
	members[id] = struct{}{}
	c.topics[topic] = struct{}{}
	h.mu.Unlock()

	if sym, ok := topic.StockSymbol(); ok && first {
		h.cover(sym)
	}
	h.logger.Debug("subscribed", "client_id", id, "topic", topic)
	return nil
}

// Unsubscribe removes id from topic.
func (h *Hub) Unsubscribe(id string, topic Topic) error {
	h.coverMu.Lock()
	defer h.coverMu.Unlock()

	h.mu.Lock()
	c, ok := h.clients[id]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownClient
	}
	if _, ok := c.topics[topic]; !ok {
		h.mu.Unlock()
		return fmt.Errorf("Not subscribed to %s", topic)
	}
	delete(c.topics, topic)
	last := h.leaveLocked(id, topic)
	h.mu.Unlock()

	if sym, ok := topic.StockSymbol(); ok && last {
		h.uncover(sym)
	}
	h.logger.Debug("unsubscribed", "client_id", id, "topic", topic)
	return nil
}

// leaveLocked removes id from topic's members and prunes the topic when
// empty. It reports whether the topic was pruned.
func (h *Hub) leaveLocked(id string, topic Topic) bool {
	members, ok := h.topics[topic]
	if !ok {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.topics, topic)
		return true
	}
	return false
}

func (h *Hub) cover(symbols ...string) {
	if h.coverage == nil {
		return
	}
	for _, s := range symbols {
		h.coverage.Cover(s)
	}
}

func (h *Hub) uncover(symbols ...string) {
	if h.coverage == nil {
		return
	}
	for _, s := range symbols {
		h.coverage.Uncover(s)
	}
}

// Broadcast delivers a push to every member of topic and returns the number
// of successful deliveries. Membership is snapshotted before sending.
func (h *Hub) Broadcast(topic Topic, msgType string, data any) int {
	h.mu.RLock()
	members := h.topics[topic]
	conns := make([]Conn, 0, len(members))
	for id := range members {
		if c, ok := h.clients[id]; ok {
			conns = append(conns, c.conn)
		}
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return 0
	}

	payload, err := json.Marshal(Push{Type: msgType, Topic: string(topic), Data: data, Timestamp: h.now().UTC()})
	if err != nil {
		h.logger.Error("failed to encode push", "topic", topic, "error", err)
		return 0
	}

	sent := 0
	for _, conn := range conns {
		err := conn.Send(payload)
		h.metrics.Delivery(context.Background(), string(topic), err)
		if err != nil {
			h.failed.Add(1)
			h.logger.Warn("delivery failed", "client_id", conn.ID(), "topic", topic, "error", err)
			continue
		}
		h.delivered.Add(1)
		sent++
	}
	return sent
}

// PublishQuotes pushes each quote to its stock topic.
func (h *Hub) PublishQuotes(quotes map[string]model.Quote) int {
	sent := 0
	for sym, q := range quotes {
		sent += h.Broadcast(StockTopic(sym), TypeStockUpdate, q)
	}
	return sent
}

// PublishOverview pushes an overview to the market topic.
func (h *Hub) PublishOverview(ov model.MarketOverview) int {
	return h.Broadcast(TopicMarket, TypeMarketUpdate, ov)
}

// PublishNews routes item to news:<SYMBOL>, or news:general when the item
// has no symbol. Missing IDs and publish times are filled in.
func (h *Hub) PublishNews(item model.NewsItem) int {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.PublishedAt.IsZero() {
		item.PublishedAt = h.now().UTC()
	}
	item.Symbol = model.NormalizeSymbol(item.Symbol)
	return h.Broadcast(NewsTopic(item.Symbol), TypeNews, item)
}

// Run forwards dataUpdate events from bus until ctx is done.
func (h *Hub) Run(ctx context.Context, bus *events.Bus) error {
	sub := bus.Subscribe(events.KindDataUpdate)
	defer sub.Close()

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, events.ErrClosed) {
				return nil
			}
			return err
		}
		h.handleUpdate(ev)
	}
}

func (h *Hub) handleUpdate(ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("broadcast panicked", "panic", r)
		}
	}()

	update, ok := ev.Payload.(scheduler.DataUpdateEvent)
	if !ok {
		h.logger.Warn("unexpected dataUpdate payload", "type", fmt.Sprintf("%T", ev.Payload))
		return
	}

	sent := h.PublishQuotes(update.Data)
	if update.Market {
		ov := model.BuildOverview(update.Data, h.cfg.IndexSymbols, h.cfg.TopN, update.Timestamp)
		sent += h.PublishOverview(ov)
	}
	h.logger.Debug("update broadcast", "target", update.Target, "quotes", len(update.Data), "deliveries", sent)
}

// HandleMessage processes one raw request from client id and sends the
// acknowledgement back to it.
func (h *Hub) HandleMessage(ctx context.Context, id string, raw []byte) {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	resp := h.handle(ctx, id, raw)
	data, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to encode response", "client_id", id, "error", err)
		return
	}
	if err := c.conn.Send(data); err != nil {
		h.logger.Warn("failed to send response", "client_id", id, "error", err)
	}
}

func (h *Hub) handle(ctx context.Context, id string, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil || req.Action == "" {
		return Response{Success: false, Error: ErrInvalidRequest.Error()}
	}

	fail := func(err error) Response {
		return Response{ID: req.ID, Success: false, Error: err.Error()}
	}

	switch req.Action {
	case ActionSubscribe, ActionUnsubscribe:
		var tr TopicRequest
		if err := decodeData(req.Data, &tr); err != nil {
			return fail(ErrInvalidRequest)
		}
		topic, err := tr.topic()
		if err != nil {
			return fail(err)
		}
		if req.Action == ActionSubscribe {
			err = h.Subscribe(id, topic)
		} else {
			err = h.Unsubscribe(id, topic)
		}
		if err != nil {
			return fail(err)
		}
		return Response{ID: req.ID, Success: true, Data: map[string]string{"topic": string(topic)}}

	case ActionGetStockData:
		var sr SymbolRequest
		if err := decodeData(req.Data, &sr); err != nil {
			return fail(ErrInvalidRequest)
		}
		ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
		q, err := h.quotes.Quote(ctx, sr.Symbol)
		if err != nil {
			return fail(err)
		}
		return Response{ID: req.ID, Success: true, Data: q}

	case ActionGetMarketOverview:
		ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
		ov, err := h.quotes.Overview(ctx, h.cfg.MarketSymbols, h.cfg.IndexSymbols, h.cfg.TopN)
		if err != nil {
			return fail(err)
		}
		return Response{ID: req.ID, Success: true, Data: ov}
	}

	return fail(fmt.Errorf("Unknown action: %s", req.Action))
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return ErrInvalidRequest
	}
	return json.Unmarshal(raw, v)
}

// Stats is a snapshot of hub state.
type Stats struct {
	Clients   int            `json:"clients"`
	Topics    map[string]int `json:"topics"` // topic -> member count
	Delivered int64          `json:"delivered"`
	Failed    int64          `json:"failed"`
}

// Stats returns current hub statistics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{
		Clients:   len(h.clients),
		Topics:    make(map[string]int, len(h.topics)),
		Delivered: h.delivered.Load(),
		Failed:    h.failed.Load(),
	}
	for t, members := range h.topics {
		st.Topics[string(t)] = len(members)
	}
	return st
}

// ClientTopics returns the sorted topics of a client.
func (h *Hub) ClientTopics(id string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Disconnect(id, reason)
	}
}
