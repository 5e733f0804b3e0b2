package protocol

import "time"

// MessageKind defines type of message
type MessageKind string

const (
	MessageKindEvent   MessageKind = "event"
	MessageKindChannel MessageKind = "channel"
	MessageKindStatus  MessageKind = "status"
)

// Action defines action within a message kind
type Action string

const (
	ActionTranslated Action = "translated"
	ActionPending    Action = "pending"
	ActionShared     Action = "shared"
	ActionDenied     Action = "denied"
	ActionFailed     Action = "failed"
	ActionEcho       Action = "echo"
	ActionSubscribe  Action = "subscribe"
)

// Message represents a protocol message
type Message struct {
	Kind   MessageKind `json:"kind"`
	Action Action      `json:"action,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// TranslationEvent describes a translation produced for a conversation.
type TranslationEvent struct {
	ConversationID   string    `json:"conversation_id"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	TargetLanguage   string    `json:"target_language,omitempty"`
	OriginalText     string    `json:"original_text,omitempty"`
	TranslatedText   string    `json:"translated_text,omitempty"`
	At               time.Time `json:"at"`
}

// SinkStatus is the result of publishing to one platform.
type SinkStatus struct {
	Platform  string   `json:"platform"`
	Success   bool     `json:"success"`
	UnitCount int      `json:"unit_count"`
	Threaded  bool     `json:"threaded,omitempty"`
	Error     string   `json:"error,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

// ShareEvent describes a finished sharing attempt.
type ShareEvent struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sinks          []SinkStatus `json:"sinks"`
	At             time.Time    `json:"at"`
}

// ChannelInfo contains information about a channel
type ChannelInfo struct {
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"last_activity,omitzero"`
	LastError    time.Time `json:"last_error,omitzero"`
}
