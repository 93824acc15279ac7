// Package feed bridges the in-process broadcasts onto a websocket
// endpoint for external consumers such as chart renderers and session
// loggers. The bridge is itself an observer agent: it subscribes to the
// maker's quote stream and relays everything it hears as JSON frames.
// A slow or dead client is dropped, never waited on.
package feed

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pchave/agentmarket/internal/agent"
	"github.com/pchave/agentmarket/internal/registry"
	"github.com/pchave/agentmarket/internal/wire"
)

// Frame is one JSON message on the feed. Raw always carries the colon
// wire encoding; the typed field matching Type is populated alongside.
type Frame struct {
	Type string    `json:"type"` // "quote", "trade" or "news"
	At   time.Time `json:"at"`
	Raw  string    `json:"raw"`

	Quote *QuoteFrame `json:"quote,omitempty"`
	Trade *TradeFrame `json:"trade,omitempty"`
	News  *NewsFrame  `json:"news,omitempty"`
}

type QuoteFrame struct {
	Symbol     string  `json:"symbol"`
	Bid        string  `json:"bid"`
	Mid        string  `json:"mid"`
	Ask        string  `json:"ask"`
	Volume     int64   `json:"volume"`
	Volatility float64 `json:"volatility"`
}

type TradeFrame struct {
	Trader   string `json:"trader"`
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	Price    string `json:"price"`
	Side     string `json:"side"`
}

type NewsFrame struct {
	Sentiment string `json:"sentiment"`
	Headline  string `json:"headline"`
	Impact    string `json:"impact"`
}

// Config parameterizes a feed bridge.
type Config struct {
	Symbol string

	// ClientBuffer is the per-client frame queue; a client that falls
	// this far behind is disconnected.
	ClientBuffer int

	WriteTimeout time.Duration
}

// DefaultConfig returns a bridge that drops clients 64 frames behind.
func DefaultConfig() Config {
	return Config{
		Symbol:       "AAPL",
		ClientBuffer: 64,
		WriteTimeout: 5 * time.Second,
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Bridge relays broadcasts to websocket clients.
type Bridge struct {
	cfg Config
	log *zap.Logger
	reg *registry.Registry

	upgrader websocket.Upgrader
	self     agent.AID

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New creates a feed bridge.
func New(cfg Config, reg *registry.Registry, log *zap.Logger) *Bridge {
	def := DefaultConfig()
	if cfg.Symbol == "" {
		cfg.Symbol = def.Symbol
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Bridge{
		cfg:     cfg,
		log:     log.Named("feed"),
		reg:     reg,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Behaviours returns the agent behaviours to spawn the bridge with.
func (b *Bridge) Behaviours() []agent.Behaviour {
	return []agent.Behaviour{
		agent.OneShot{Name: "feed-bootstrap", Fn: b.bootstrap},
		agent.Cyclic{
			Name:  "feed-quotes",
			Match: agent.Pattern{Topic: agent.TopicMarketData, Performative: agent.Inform},
			Fn:    b.onQuote,
		},
		agent.Cyclic{
			Name:  "feed-trades",
			Match: agent.Pattern{Topic: agent.TopicTradeExecuted, Performative: agent.Inform},
			Fn:    b.onTrade,
		},
		agent.Cyclic{
			Name:  "feed-news",
			Match: agent.Pattern{Topic: agent.TopicNews, Performative: agent.Inform},
			Fn:    b.onNews,
		},
	}
}

func (b *Bridge) bootstrap(ctx *agent.Ctx) {
	b.self = ctx.Self()
	b.reg.Register(b.self, registry.CapabilityObserver)

	maker, ok := b.reg.AwaitFirst(registry.CapabilityMarketMaker, 8)
	if !ok {
		b.log.Warn("no market maker found, feed carries trades and news only")
		return
	}
	_ = ctx.Send(agent.Envelope{
		Sender:       b.self,
		Receivers:    []agent.AID{maker},
		Performative: agent.Subscribe,
		Topic:        agent.TopicMarketDataSub,
		Payload:      wire.MarketDataSubscribe{Symbol: b.cfg.Symbol},
	})
}

func (b *Bridge) onQuote(ctx *agent.Ctx, e agent.Envelope) {
	qd, ok := e.Payload.(wire.QuoteData)
	if !ok {
		return
	}
	q := qd.Quote
	b.broadcast(Frame{
		Type: "quote",
		At:   e.SentAt,
		Raw:  qd.Encode(),
		Quote: &QuoteFrame{
			Symbol:     q.Symbol,
			Bid:        q.Bid.StringFixed(2),
			Mid:        q.Mid.StringFixed(2),
			Ask:        q.Ask.StringFixed(2),
			Volume:     q.Volume,
			Volatility: q.Volatility,
		},
	})
}

func (b *Bridge) onTrade(ctx *agent.Ctx, e agent.Envelope) {
	n, ok := e.Payload.(wire.TradeNotice)
	if !ok {
		return
	}
	b.broadcast(Frame{
		Type: "trade",
		At:   e.SentAt,
		Raw:  n.Encode(),
		Trade: &TradeFrame{
			Trader:   n.TraderID,
			Symbol:   n.Symbol,
			Quantity: n.Quantity,
			Price:    n.Price.StringFixed(2),
			Side:     n.Side.String(),
		},
	})
}

func (b *Bridge) onNews(ctx *agent.Ctx, e agent.Envelope) {
	f, ok := e.Payload.(wire.NewsFlash)
	if !ok {
		return
	}
	b.broadcast(Frame{
		Type: "news",
		At:   e.SentAt,
		Raw:  f.Encode(),
		News: &NewsFrame{
			Sentiment: f.Sentiment.String(),
			Headline:  f.Headline,
			Impact:    f.Impact.String(),
		},
	})
}

// Handler returns the websocket upgrade handler, mountable wherever the
// caller serves HTTP.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		c := &client{conn: conn, send: make(chan []byte, b.cfg.ClientBuffer)}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			conn.Close()
			return
		}
		b.clients[c] = struct{}{}
		n := len(b.clients)
		b.mu.Unlock()
		b.log.Info("feed client connected", zap.Int("clients", n))

		go b.writePump(c)
		go b.readPump(c)
	})
}

// ClientCount returns the number of connected clients.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client. The bridge's agent behaviours keep
// draining broadcasts into the void until the runtime stops them.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[*client]struct{})
	b.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// broadcast queues the frame to every client, dropping those whose
// buffers are full. Called from the bridge agent's goroutine only.
func (b *Bridge) broadcast(f Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		b.log.Error("encoding frame", zap.Error(err))
		return
	}

	b.mu.Lock()
	var stale []*client
	for c := range b.clients {
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
			delete(b.clients, c)
		}
	}
	b.mu.Unlock()

	for _, c := range stale {
		close(c.send)
		b.log.Warn("dropping slow feed client")
	}
}

func (b *Bridge) writePump(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session over"),
		time.Now().Add(time.Second))
}

// readPump discards inbound messages; the feed is one-way. It exists to
// process control frames and notice disconnects.
func (b *Bridge) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			b.remove(c)
			return
		}
	}
}

// remove detaches a client after a read or write error. The send
// channel is left to the garbage collector; closing it here could race
// a concurrent broadcast.
func (b *Bridge) remove(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	c.conn.Close()
}
