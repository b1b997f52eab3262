package persistence

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/watchparty/coordinator/pkg/storage"
)

// Archive writes the chat transcript of a closed room into cloud storage.
type Archive struct {
	store Store
	cloud storage.CloudStorage
}

func NewArchive(store Store, cloud storage.CloudStorage) *Archive {
	return &Archive{store: store, cloud: cloud}
}

type transcript struct {
	Room     Room      `json:"room"`
	Messages []Message `json:"messages"`
}

func TranscriptName(code string) string { return fmt.Sprintf("rooms/%s/transcript.json", code) }

func (a *Archive) Save(ctx context.Context, room Room) error {
	messages, err := a.store.Messages(ctx, room.Code, 0, "")
	if err != nil {
		return err
	}
	data, err := json.Marshal(transcript{Room: room, Messages: messages})
	if err != nil {
		return err
	}
	return a.cloud.Save(TranscriptName(room.Code), data, map[string]string{
		"room":   room.Code,
		"reason": room.CloseReason,
	})
}
