package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"nutrichat/rdx"
)

type Event struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Action    string `json:"action"`
	ItemID    string `json:"item_id,omitempty"`
	ItemType  string `json:"item_type,omitempty"`
}

// Emit publishes a selection lifecycle event on the session's redis channel.
func Emit(eventName string, content Event) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("mq: marshalling event: %w", err)
	}
	channel := "selection:" + content.SessionID
	if err := rdx.Conn.Publish(context.Background(), channel, payload).Err(); err != nil {
		return fmt.Errorf("mq: publishing %s: %w", eventName, err)
	}
	return nil
}
