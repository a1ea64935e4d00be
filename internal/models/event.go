package models

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the live channel.
const (
	EventAuthenticate      = "authenticate"
	EventAuthenticated     = "authenticated"
	EventGetConversations  = "get_conversations"
	EventConversationsList = "conversations_list"
	EventGetMessages       = "get_messages"
	EventMessagesList      = "messages_list"
	EventStartConversation = "start_conversation"
	EventSendMessage       = "send_message"
	EventNewMessage        = "new_message"
	EventConversationUpd   = "conversation_updated"
	EventMarkAsRead        = "mark_as_read"
	EventMessagesRead      = "messages_read"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventOnlineUsers       = "online_users"
	EventNewNotification   = "new_notification"
	EventPing              = "ping"
	EventPong              = "pong"
	EventError             = "error"
)

// Event is an outbound frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Frame is an inbound client frame; Data is decoded per command.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is sent back to the connection that issued a failed command.
type ErrorPayload struct {
	Command string `json:"command"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OnlineUser is one live connection as broadcast in online_users.
type OnlineUser struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	UserType     string    `json:"userType"`
	ConnectionID string    `json:"connectionId"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// ReadReceipt is the payload of messages_read.
type ReadReceipt struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

// TypingPayload is the payload of user_typing and user_stopped_typing.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserEmail      string `json:"userEmail"`
}

// MessagesList is the payload of messages_list.
type MessagesList struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}
