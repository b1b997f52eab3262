package coordinator

import (
	"github.com/watchparty/coordinator/pkg/api"
	"github.com/watchparty/coordinator/pkg/logger"
)

type EdgeState int

const (
	Negotiating EdgeState = iota
	Established
)

func (s EdgeState) String() string {
	if s == Established {
		return "established"
	}
	return "negotiating"
}

// edge is an unordered pair of voice participants.
type edge struct{ a, b string }

func newEdge(x, y string) edge {
	if x > y {
		x, y = y, x
	}
	return edge{a: x, b: y}
}

func (e edge) has(id string) bool { return e.a == id || e.b == id }

// voiceJoin marks the participant as voice joined. Every voice peer gets
// the newcomer's voice_join and the newcomer gets one voice_join per peer,
// so each pair learns about each other exactly once.
func (r *Room) voiceJoin(p *Participant) error {
	if p.Voice {
		return conflictError("already in voice")
	}
	notify := api.UserNotify{Header: r.head(api.VoiceJoin), UserId: p.Id, Username: p.Name}
	r.toVoice(notify, p.Id)
	for _, q := range r.participants {
		if !q.Voice || q == p {
			continue
		}
		r.edges[newEdge(p.Id, q.Id)] = Negotiating
		p.conn.Send(api.UserNotify{Header: r.head(api.VoiceJoin), UserId: q.Id, Username: q.Name})
	}
	p.Voice = true
	r.log.Debug().Str(logger.UserField, p.Id).Int("edges", len(r.edges)).Msg("voice join")
	return nil
}

func (r *Room) voiceLeave(p *Participant) error {
	if !p.Voice {
		return conflictError("not in voice")
	}
	r.voiceDrop(p)
	return nil
}

// voiceDrop tears down every edge of the participant.
func (r *Room) voiceDrop(p *Participant) {
	p.Voice = false
	for e := range r.edges {
		if e.has(p.Id) {
			delete(r.edges, e)
		}
	}
	r.toVoice(api.UserNotify{Header: r.head(api.VoiceLeave), UserId: p.Id, Username: p.Name}, p.Id)
}

// relay forwards an offer, answer or candidate to its target only,
// stamped with the verified sender id. Messages to participants who are
// absent or not in voice are dropped and counted as delivery misses.
func (r *Room) relay(p *Participant, in api.In) error {
	if !p.Voice {
		return protocolError("join voice before signaling")
	}
	req, err := api.UnwrapIn[api.SignalRequest](in)
	if err != nil {
		return protocolError("bad %v payload", in.Event)
	}
	if req.To == "" {
		return protocolError("to_user_id is required")
	}
	if req.To == p.Id {
		return protocolError("cannot signal yourself")
	}
	switch in.Event {
	case api.VoiceOffer, api.VoiceAnswer:
		if len(req.Sdp) == 0 {
			return protocolError("sdp is required")
		}
	case api.VoiceIceCandidate:
		if len(req.Candidate) == 0 {
			return protocolError("candidate is required")
		}
	}

	target := r.find(req.To)
	if target == nil {
		r.miss(req.To, in.Event, "absent")
		return nil
	}
	if !target.Voice {
		r.miss(req.To, in.Event, "not in voice")
		return nil
	}

	e := newEdge(p.Id, target.Id)
	switch in.Event {
	case api.VoiceOffer:
		if _, ok := r.edges[e]; !ok {
			r.edges[e] = Negotiating
		}
	case api.VoiceAnswer:
		r.edges[e] = Established
	}

	target.conn.Send(api.SignalNotify{
		Header:    r.head(in.Event),
		From:      p.Id,
		To:        target.Id,
		Sdp:       req.Sdp,
		Candidate: req.Candidate,
	})
	return nil
}

// Edge returns the state of the voice edge between two participants.
func (r *Room) Edge(x, y string) (EdgeState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.edges[newEdge(x, y)]
	return s, ok
}
