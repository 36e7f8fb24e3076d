package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"townsync/protocol"
)

// applyInput 解释一条 WebSocket 客户端帧
// 示例：{"type":"player_update","x":1,"y":2,"map":"town"} / {"type":"chat_send","text":"hi"}
func (s *Server) applyInput(id protocol.PlayerID, payload []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.metrics.IncBadRequests()
		return fmt.Errorf("decode frame: %w", err)
	}

	switch strings.ToLower(env.Type) {
	case protocol.TypePlayerUpdate:
		var f protocol.PlayerUpdateFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			s.metrics.IncBadRequests()
			return fmt.Errorf("decode player_update: %w", err)
		}
		dir, ok := protocol.ParseDirection(f.Direction)
		if !ok {
			s.metrics.IncBadRequests()
			return fmt.Errorf("invalid direction %q", f.Direction)
		}
		err := s.registry.Update(protocol.PlayerState{
			ID:        id,
			X:         f.X,
			Y:         f.Y,
			Map:       f.Map,
			Direction: dir,
			IsMoving:  f.IsMoving,
		})
		if errors.Is(err, ErrPlayerNotFound) {
			s.metrics.IncUpdatesNotFound()
			return err
		}
		if err != nil {
			return err
		}
		s.metrics.IncUpdatesAccepted()
		return nil

	case protocol.TypeChatSend:
		var f protocol.ChatSendFrame
		if err := json.Unmarshal(payload, &f); err != nil {
			s.metrics.IncBadRequests()
			return fmt.Errorf("decode chat_send: %w", err)
		}
		text := strings.TrimSpace(f.Text)
		if text == "" {
			return errors.New("empty chat text")
		}
		s.postChat(id, text)
		return nil

	default:
		return fmt.Errorf("unknown frame type %q", env.Type)
	}
}
