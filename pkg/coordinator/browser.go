package coordinator

import (
	"net/url"
	"strings"
	"time"

	"github.com/watchparty/coordinator/pkg/api"
)

type browserState struct {
	running   bool
	lastCrash time.Time
}

// input forwards a browser input event of the control holder.
func (r *Room) input(p *Participant, in api.In) error {
	if !r.control.IsHolder(p.Id) {
		return authorizationError("only the controller can use the browser")
	}
	if !r.browser.running {
		return conflictError("browser is not running")
	}
	b := r.deps.bridge
	switch in.Event {
	case api.BrowserNavigate:
		req, err := api.UnwrapIn[api.NavigateRequest](in)
		if err != nil {
			return protocolError("bad navigate payload")
		}
		u, err := normalizeUrl(req.Url)
		if err != nil {
			return err
		}
		return b.Navigate(r.code, u)
	case api.BrowserClick:
		req, err := api.UnwrapIn[api.ClickRequest](in)
		if err != nil || req.X == nil || req.Y == nil {
			return protocolError("x and y are required")
		}
		if *req.X < 0 || *req.Y < 0 {
			return protocolError("negative coordinates")
		}
		return b.Click(r.code, *req.X, *req.Y)
	case api.BrowserType:
		req, err := api.UnwrapIn[api.TypeRequest](in)
		if err != nil || req.Text == "" {
			return protocolError("text is required")
		}
		return b.Type(r.code, req.Text)
	case api.BrowserKeypress:
		req, err := api.UnwrapIn[api.KeypressRequest](in)
		if err != nil || req.Key == "" {
			return protocolError("key is required")
		}
		return b.Keypress(r.code, req.Key)
	case api.BrowserScroll:
		req, err := api.UnwrapIn[api.ScrollRequest](in)
		if err != nil {
			return protocolError("bad scroll payload")
		}
		return b.Scroll(r.code, req.DeltaX, req.DeltaY)
	}
	return protocolError("unknown event %v", in.Event)
}

// normalizeUrl adds https:// to bare hosts and allows only web urls.
func normalizeUrl(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", protocolError("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", protocolError("invalid url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", protocolError("only http and https urls are allowed")
	}
	return u.String(), nil
}

func (r *Room) startBrowser(p *Participant) error {
	if p.Id != r.hostId {
		return authorizationError("only the host can start the browser")
	}
	if r.browser.running {
		return conflictError("browser is already running")
	}
	if err := r.deps.bridge.Start(r.code); err != nil {
		return err
	}
	r.browser = browserState{running: true}
	r.log.Info().Msg("browser started")
	r.broadcast(api.BrowserStateNotify{Header: r.head(api.BrowserState), Running: true}, "")
	return nil
}

func (r *Room) stopBrowserBy(p *Participant) error {
	if p.Id != r.hostId {
		return authorizationError("only the host can stop the browser")
	}
	if !r.browser.running {
		return conflictError("browser is not running")
	}
	r.stopBrowser()
	r.broadcast(api.BrowserStateNotify{Header: r.head(api.BrowserState), Reason: "stopped"}, "")
	return nil
}

func (r *Room) stopBrowser() {
	if !r.browser.running {
		return
	}
	r.browser.running = false
	if err := r.deps.bridge.Stop(r.code); err != nil {
		r.log.Warn().Err(err).Msg("browser stop")
	}
}

// OnFrame relays a captured frame to every participant.
func (r *Room) OnFrame(frame, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Open || !r.browser.running {
		return
	}
	r.broadcast(api.BrowserFrameNotify{Header: r.head(api.BrowserFrame), Frame: frame, Url: url}, "")
}

func (r *Room) OnUrlChanged(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Open || !r.browser.running {
		return
	}
	r.broadcast(api.BrowserUrlNotify{Header: r.head(api.BrowserUrlChanged), Url: url}, "")
}

// OnCrash restarts a crashed browser once. A second crash within
// the restart window, or a failed restart, closes the room.
func (r *Room) OnCrash(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Open || !r.browser.running {
		return
	}
	now := r.deps.now()
	r.log.Warn().Err(cause).Msg("browser crashed")

	if !r.browser.lastCrash.IsZero() && now.Sub(r.browser.lastCrash) < r.deps.restartWindow {
		r.browser.running = false
		r.close(ClosedBrowserFailure)
		return
	}
	r.browser.lastCrash = now
	if err := r.deps.bridge.Start(r.code); err != nil {
		r.log.Error().Err(err).Msg("browser restart")
		r.browser.running = false
		r.close(ClosedBrowserFailure)
		return
	}
	browserRestarts.Inc()
	r.broadcast(api.BrowserStateNotify{Header: r.head(api.BrowserState), Running: true, Reason: "restarted"}, "")
}
