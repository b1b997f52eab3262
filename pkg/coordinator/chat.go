package coordinator

import (
	"strings"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/persistence"
)

const DefaultChatMaxLength = 1000

func (r *Room) chat(p *Participant, in api.In) error {
	req, err := api.UnwrapIn[api.ChatMessageRequest](in)
	if err != nil {
		return protocolError("bad chat payload")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return protocolError("message cannot be empty")
	}
	if utf8.RuneCountInString(content) > r.deps.chatMaxLength {
		return protocolError("message too long")
	}

	now := r.deps.now()
	id := ulid.Make().String()
	r.broadcast(api.ChatMessageNotify{
		Header:    api.Head(api.ChatMessage, now),
		MessageId: id,
		UserId:    p.Id,
		Username:  p.Name,
		Content:   content,
	}, "")
	r.deps.persist.Message(persistence.Message{
		Id:        id,
		Room:      r.code,
		UserId:    p.Id,
		Username:  p.Name,
		Content:   content,
		Timestamp: now.UnixMilli(),
	})
	return nil
}
