package dxlink

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Message types on the wire.
const (
	TypeSetup            = "SETUP"
	TypeAuth             = "AUTH"
	TypeAuthState        = "AUTH_STATE"
	TypeChannelRequest   = "CHANNEL_REQUEST"
	TypeChannelOpened    = "CHANNEL_OPENED"
	TypeFeedSubscription = "FEED_SUBSCRIPTION"
	TypeFeedConfig       = "FEED_CONFIG"
	TypeFeedData         = "FEED_DATA"
	TypeKeepalive        = "KEEPALIVE"
	TypeError            = "ERROR"
)

// Authorization states reported in AUTH_STATE.
const (
	AuthStateUnauthorized = "UNAUTHORIZED"
	AuthStateAuthorized   = "AUTHORIZED"
)

const (
	controlChannel = 0
	feedChannel    = 1

	protocolVersion  = "1.0.0"
	keepaliveTimeout = 60
)

// EventType is a feed event kind.
type EventType string

const (
	EventTrade   EventType = "Trade"
	EventQuote   EventType = "Quote"
	EventGreeks  EventType = "Greeks"
	EventSummary EventType = "Summary"
)

// Client -> server messages. Field order is the wire order.
type (
	setupMessage struct {
		Type                   string `json:"type"`
		Channel                int    `json:"channel"`
		KeepaliveTimeout       int    `json:"keepaliveTimeout"`
		AcceptKeepaliveTimeout int    `json:"acceptKeepaliveTimeout"`
		Version                string `json:"version"`
	}

	authMessage struct {
		Type    string `json:"type"`
		Channel int    `json:"channel"`
		Token   string `json:"token"`
	}

	channelParameters struct {
		Contract string `json:"contract"`
	}

	channelRequestMessage struct {
		Type       string            `json:"type"`
		Channel    int               `json:"channel"`
		Service    string            `json:"service"`
		Parameters channelParameters `json:"parameters"`
	}

	feedSubscriptionMessage struct {
		Type    string         `json:"type"`
		Channel int            `json:"channel"`
		Add     []Subscription `json:"add"`
	}

	keepaliveMessage struct {
		Type    string `json:"type"`
		Channel int    `json:"channel"`
	}
)

// Subscription is one (symbol, event kind) pair of a FEED_SUBSCRIPTION.
type Subscription struct {
	Symbol string    `json:"symbol"`
	Type   EventType `json:"type"`
}

// Subscriptions pairs every symbol with every kind, symbol-major.
func Subscriptions(symbols []string, kinds ...EventType) []Subscription {
	subs := make([]Subscription, 0, len(symbols)*len(kinds))
	for _, sym := range symbols {
		for _, kind := range kinds {
			subs = append(subs, Subscription{Symbol: sym, Type: kind})
		}
	}
	return subs
}

// Message is a decoded server -> client message.
type Message struct {
	Type    string          `json:"type"`
	Channel int             `json:"channel"`
	State   string          `json:"state,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (m Message) describe() string {
	parts := []string{m.Type}
	if m.State != "" {
		parts = append(parts, "state="+m.State)
	}
	if m.Error != "" {
		parts = append(parts, "error="+m.Error)
	}
	if m.Message != "" {
		parts = append(parts, "message="+m.Message)
	}
	return strings.Join(parts, " ")
}

// Event is one FEED_DATA record. Only the fields of its EventType are set.
type Event struct {
	EventSymbol string    `json:"eventSymbol"`
	EventType   EventType `json:"eventType"`

	// Trade
	Price     *Number `json:"price,omitempty"`
	DayVolume *Number `json:"dayVolume,omitempty"`

	// Quote
	BidPrice *Number `json:"bidPrice,omitempty"`
	AskPrice *Number `json:"askPrice,omitempty"`

	// Greeks
	Gamma      *Number `json:"gamma,omitempty"`
	Delta      *Number `json:"delta,omitempty"`
	Volatility *Number `json:"volatility,omitempty"`

	// Summary
	OpenInterest *Number `json:"openInterest,omitempty"`
}

// Events decodes the data array of a FEED_DATA message. Records that do not
// decode as events are skipped; skipped reports how many.
func (m Message) Events() (events []Event, skipped int) {
	if m.Type != TypeFeedData || len(m.Data) == 0 {
		return nil, 0
	}

	var items []json.RawMessage
	if err := json.Unmarshal(m.Data, &items); err != nil {
		return nil, 1
	}

	events = make([]Event, 0, len(items))
	for _, item := range items {
		var ev Event
		if err := json.Unmarshal(item, &ev); err != nil || ev.EventSymbol == "" {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

// Number is a feed numeric field. The feed sends plain numbers, numeric
// strings and "NaN"; anything unparseable decodes as NaN instead of failing
// the whole message.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			*n = Number(math.NaN())
			return nil
		}
		s = unquoted
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = Number(math.NaN())
		return nil
	}
	*n = Number(f)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) {
		return []byte(`"NaN"`), nil
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return []byte(`"Infinity"`), nil
		}
		return []byte(`"-Infinity"`), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// Float returns the value as a pointer, nil when the field was absent.
func (n *Number) Float() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

// Finite reports the value when present and a real number.
func (n *Number) Finite() (float64, bool) {
	if n == nil {
		return 0, false
	}
	f := float64(*n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NewNumber is a convenience for building events.
func NewNumber(f float64) *Number {
	n := Number(f)
	return &n
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.EventType, e.EventSymbol)
}
