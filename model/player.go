package model

// PlayerState 播放引擎侧的实时状态
type PlayerState struct {
	Connected  bool  `json:"connected"`
	Playing    bool  `json:"playing"` // 有曲目在播放（包括暂停中）
	Paused     bool  `json:"paused"`
	PositionMs int64 `json:"positionMs"`
}

// Active 是否正在出声
func (s PlayerState) Active() bool {
	return s.Playing && !s.Paused
}

// PositionSeconds 返回当前位置（秒）
func (s PlayerState) PositionSeconds() float64 {
	return float64(s.PositionMs) / 1000.0
}

// VoiceState 语音连接信息，由网关转发给播放引擎
type VoiceState struct {
	ChannelID string `json:"channelId"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
}

// Complete 语音信息是否齐全
func (v VoiceState) Complete() bool {
	return v.SessionID != "" && v.Token != "" && v.Endpoint != ""
}
