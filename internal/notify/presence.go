package notify

import (
	"encoding/json"
	"sync"

	"github.com/MarkoPoloResearchLab/bazaar/pkg/economy"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type presencePayload struct {
	PlayerID string `json:"player_id"`
	Online   bool   `json:"online"`
}

// Presence tracks which players the game server reports as online.
type Presence struct {
	mu     sync.RWMutex
	online map[string]struct{}
	logger *zap.Logger
}

func NewPresence(logger *zap.Logger) *Presence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presence{online: make(map[string]struct{}), logger: logger}
}

func (presence *Presence) IsOnline(playerID economy.PlayerID) bool {
	presence.mu.RLock()
	defer presence.mu.RUnlock()
	_, ok := presence.online[playerID.String()]
	return ok
}

func (presence *Presence) SetOnline(playerID economy.PlayerID, online bool) {
	presence.mu.Lock()
	defer presence.mu.Unlock()
	if online {
		presence.online[playerID.String()] = struct{}{}
		return
	}
	delete(presence.online, playerID.String())
}

// HandleMessage consumes presence events published on SubjectPresence.
func (presence *Presence) HandleMessage(message *nats.Msg) {
	var payload presencePayload
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		presence.logger.Warn("presence decode failed", zap.Error(err))
		return
	}
	playerID, err := economy.NewPlayerID(payload.PlayerID)
	if err != nil {
		presence.logger.Warn("presence event without player", zap.Error(err))
		return
	}
	presence.SetOnline(playerID, payload.Online)
}

// Subscribe attaches the tracker to the broker.
func (presence *Presence) Subscribe(conn *nats.Conn) (*nats.Subscription, error) {
	return conn.Subscribe(SubjectPresence, presence.HandleMessage)
}
