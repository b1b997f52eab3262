// Package persistence keeps chat history and room metadata
// outside of the coordinator's memory.
package persistence

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("store is closed")

type Room struct {
	Code        string    `json:"room_code"`
	HostId      string    `json:"host_id"`
	Title       string    `json:"title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	CloseReason string    `json:"close_reason,omitempty"`
}

type Message struct {
	Id       string `json:"message_id"`
	Room     string `json:"room_code"`
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	Content  string `json:"content"`
	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

type Store interface {
	SaveRoom(ctx context.Context, room Room) error
	AddMessage(ctx context.Context, msg Message) error
	// Messages returns up to limit messages whose id sorts before
	// beforeId (empty means the latest), oldest first. Message ids are
	// ULIDs so id order is send order.
	Messages(ctx context.Context, room string, limit int, beforeId string) ([]Message, error)
	Close() error
}
