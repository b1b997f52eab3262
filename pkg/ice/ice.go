package ice

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
	"github.com/watchparty/coordinator/pkg/config"
)

type Replacement struct {
	From string
	To   string
}

func NewIceServer(url string) config.IceServer {
	return config.IceServer{Urls: url}
}

func NewIceServerCredentials(url string, user string, credential string) config.IceServer {
	return config.IceServer{Urls: url, Username: user, Credential: credential}
}

// Prepare converts configured servers into the descriptors sent to
// voice participants. A config entry may hold several comma separated
// urls. Invalid urls fail the whole list.
func Prepare(iceServers []config.IceServer, replacements ...Replacement) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, s := range iceServers {
		server := webrtc.ICEServer{Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		for _, raw := range strings.Split(s.Urls, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			for _, r := range replacements {
				raw = strings.ReplaceAll(raw, "{"+r.From+"}", r.To)
			}
			u, err := ice.ParseURL(raw)
			if err != nil {
				return nil, fmt.Errorf("ice server %q: %w", raw, err)
			}
			if (u.Scheme == ice.SchemeTypeTURN || u.Scheme == ice.SchemeTypeTURNS) && (s.Username == "" || s.Credential == "") {
				return nil, fmt.Errorf("ice server %q: turn needs username and credential", raw)
			}
			server.URLs = append(server.URLs, raw)
		}
		if len(server.URLs) > 0 {
			out = append(out, server)
		}
	}
	return out, nil
}

// FromConfig applies the {server-ip} mapping of the config.
func FromConfig(conf config.Webrtc) ([]webrtc.ICEServer, error) {
	var rep []Replacement
	if conf.HasIceIpMap() {
		rep = append(rep, Replacement{From: "server-ip", To: conf.IceIpMap})
	}
	return Prepare(conf.IceServers, rep...)
}
