package faker

import (
	"encoding/json"
	"fmt"

	"github.com/dgnsrekt/gex-live/internal/dxlink"
)

// upstreamMessage is any client -> server dxLink message.
type upstreamMessage struct {
	Type    string                `json:"type"`
	Channel int                   `json:"channel"`
	Token   string                `json:"token,omitempty"`
	Service string                `json:"service,omitempty"`
	Add     []dxlink.Subscription `json:"add,omitempty"`
}

func parseUpstreamMessage(data []byte) (*upstreamMessage, error) {
	var msg upstreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal upstream message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("upstream message without type")
	}
	return &msg, nil
}

func buildSetupMessage() []byte {
	msg := map[string]interface{}{
		"type":                   dxlink.TypeSetup,
		"channel":                0,
		"keepaliveTimeout":       60,
		"acceptKeepaliveTimeout": 60,
		"version":                "1.0.0-faker",
	}
	data, _ := json.Marshal(msg)
	return data
}

func buildAuthStateMessage(state string) []byte {
	msg := map[string]interface{}{
		"type":    dxlink.TypeAuthState,
		"channel": 0,
		"state":   state,
	}
	data, _ := json.Marshal(msg)
	return data
}

func buildChannelOpenedMessage(channel int) []byte {
	msg := map[string]interface{}{
		"type":       dxlink.TypeChannelOpened,
		"channel":    channel,
		"service":    "FEED",
		"parameters": map[string]string{"contract": "AUTO"},
	}
	data, _ := json.Marshal(msg)
	return data
}

func buildErrorMessage(channel int, code, message string) []byte {
	msg := map[string]interface{}{
		"type":    dxlink.TypeError,
		"channel": channel,
		"error":   code,
		"message": message,
	}
	data, _ := json.Marshal(msg)
	return data
}

func buildKeepaliveMessage() []byte {
	msg := map[string]interface{}{
		"type":    dxlink.TypeKeepalive,
		"channel": 0,
	}
	data, _ := json.Marshal(msg)
	return data
}

func buildFeedDataMessage(channel int, events []dxlink.Event) []byte {
	msg := map[string]interface{}{
		"type":    dxlink.TypeFeedData,
		"channel": channel,
		"data":    events,
	}
	data, _ := json.Marshal(msg)
	return data
}
