package coordinator

import (
	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/logger"
)

// broadcast encodes once and enqueues the same bytes to every connection.
// Enqueueing never blocks, so a slow participant cannot hold the room.
func (r *Room) broadcast(v any, exclude string) {
	data, err := api.Encode(v)
	if err != nil {
		r.log.Error().Err(err).Msg("broadcast encode")
		return
	}
	for _, p := range r.participants {
		if p.Id == exclude {
			continue
		}
		p.conn.write(data)
	}
}

func (r *Room) unicast(target string, event api.Event, v any) bool {
	p := r.find(target)
	if p == nil {
		r.miss(target, event, "absent")
		return false
	}
	p.conn.Send(v)
	return true
}

// miss records a message that had nobody to go to.
func (r *Room) miss(target string, event api.Event, why string) {
	deliveryMisses.WithLabelValues(event.String()).Inc()
	r.log.Debug().Str(logger.UserField, target).Str("event", event.String()).
		Str("why", why).Msg("delivery miss")
}

// toVoice delivers a message to every voice joined participant but one.
func (r *Room) toVoice(v any, exclude string) {
	data, err := api.Encode(v)
	if err != nil {
		r.log.Error().Err(err).Msg("voice encode")
		return
	}
	for _, p := range r.participants {
		if p.Voice && p.Id != exclude {
			p.conn.write(data)
		}
	}
}
