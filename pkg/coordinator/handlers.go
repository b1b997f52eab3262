package coordinator

import (
	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/logger"
)

// Handle applies one inbound message of a participant to the room.
// Errors are meant for the sender only; a rejected message never
// changes the room.
func (r *Room) Handle(c *Conn, in api.In) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() != Open {
		return notFoundError("room %v is closed", r.code)
	}
	p, err := r.participant(c)
	if err != nil {
		return err
	}
	r.touch()

	switch in.Event {
	case api.LeaveRoom:
		r.depart(p)
	case api.ChatMessage:
		return r.chat(p, in)
	case api.RequestControl:
		return r.requestControl(p)
	case api.PassControl:
		req, err := api.UnwrapIn[api.PassControlRequest](in)
		if err != nil {
			return protocolError("bad pass_control payload")
		}
		t, err := r.control.Pass(p.Id, req.Target, req.Version, r.present)
		if err != nil {
			return err
		}
		r.controlChanged(t)
	case api.TakeControl:
		t, err := r.control.HostOverride(p.Id, r.hostId)
		if err != nil {
			return err
		}
		r.controlChanged(t)
	case api.VoiceJoin:
		return r.voiceJoin(p)
	case api.VoiceLeave:
		return r.voiceLeave(p)
	case api.VoiceOffer, api.VoiceAnswer, api.VoiceIceCandidate:
		return r.relay(p, in)
	case api.BrowserNavigate, api.BrowserClick, api.BrowserType, api.BrowserKeypress, api.BrowserScroll:
		return r.input(p, in)
	case api.BrowserStart:
		return r.startBrowser(p)
	case api.BrowserStop:
		return r.stopBrowserBy(p)
	default:
		return protocolError("unknown event %v", in.Event)
	}
	return nil
}

// requestControl tells the holder and the host that someone
// wants control. Nothing changes until they act on it.
func (r *Room) requestControl(p *Participant) error {
	if err := r.control.RequestNotify(p.Id); err != nil {
		return err
	}
	n := api.UserNotify{Header: r.head(api.ControlRequested), UserId: p.Id, Username: p.Name}
	sent := map[string]bool{p.Id: true}
	for _, id := range []string{r.control.Holder(), r.hostId} {
		if id == "" || sent[id] {
			continue
		}
		sent[id] = true
		r.unicast(id, api.ControlRequested, n)
	}
	r.log.Debug().Str(logger.UserField, p.Id).Msg("control requested")
	return nil
}
