package protocol

import "github.com/invopop/jsonschema"

// Schemas 反射生成所有线上载荷的 JSON Schema，键为载荷名
func Schemas() map[string]*jsonschema.Schema {
	records := map[string]any{
		"PlayerState":        PlayerState{},
		"ChatMessage":        ChatMessage{},
		"UpdateRequest":      UpdateRequest{},
		"ChatPostRequest":    ChatPostRequest{},
		"RegisterResponse":   RegisterResponse{},
		"PlayersResponse":    PlayersResponse{},
		"ChatResponse":       ChatResponse{},
		"RegisteredFrame":    RegisteredFrame{},
		"PlayersUpdateFrame": PlayersUpdateFrame{},
		"ChatUpdateFrame":    ChatUpdateFrame{},
		"PlayerUpdateFrame":  PlayerUpdateFrame{},
		"ChatSendFrame":      ChatSendFrame{},
	}
	out := make(map[string]*jsonschema.Schema, len(records))
	for name, v := range records {
		out[name] = jsonschema.Reflect(v)
	}
	return out
}
