package protocol

// WebSocket 推送通道的文本帧，均以 type 字段区分

// 服务端 → 客户端
const (
	TypeRegistered    = "registered"
	TypePlayersUpdate = "players_update"
	TypeChatUpdate    = "chat_update"
	TypeError         = "error"
)

// 客户端 → 服务端
const (
	TypePlayerUpdate = "player_update"
	TypeChatSend     = "chat_send"
)

// Envelope 仅用于读取 type 以决定后续解码目标
type Envelope struct {
	Type string `json:"type"`
}

type RegisteredFrame struct {
	Type string   `json:"type"`
	ID   PlayerID `json:"id"`
}

type PlayersUpdateFrame struct {
	Type    string                   `json:"type"`
	Players map[PlayerID]PlayerState `json:"players"`
}

type ChatUpdateFrame struct {
	Type     string        `json:"type"`
	Messages []ChatMessage `json:"messages"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PlayerUpdateFrame 玩家 id 由连接决定，帧内不携带
type PlayerUpdateFrame struct {
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Map       string  `json:"map"`
	Direction string  `json:"direction,omitempty"`
	IsMoving  bool    `json:"is_moving,omitempty"`
}

type ChatSendFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
