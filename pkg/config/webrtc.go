package config

type Webrtc struct {
	// IceServers are handed to every participant joining a room
	// so the voice mesh can gather candidates.
	IceServers []IceServer
	// IceIpMap replaces the {server-ip} placeholder in ICE urls.
	IceIpMap string
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasIceIpMap() bool { return w.IceIpMap != "" }

var DefaultIceServers = []IceServer{{Urls: "stun:stun.l.google.com:19302"}}
