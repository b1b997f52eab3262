package api

// Room is attached to every message of the automation worker link
// so that one worker may run browsers for many rooms.
type Room struct {
	Code string `json:"room_code"`
}

type (
	WorkerHelloRequest struct {
		Capacity int    `json:"capacity"`
		Name     string `json:"name,omitempty"`
	}
	// BrowserCommand is sent to a worker. Only the fields
	// relevant for the event are set.
	BrowserCommand struct {
		Event Event `json:"event"`
		Room
		Url    string `json:"url,omitempty"`
		X      int    `json:"x,omitempty"`
		Y      int    `json:"y,omitempty"`
		Text   string `json:"text,omitempty"`
		Key    string `json:"key,omitempty"`
		DeltaX int    `json:"delta_x,omitempty"`
		DeltaY int    `json:"delta_y,omitempty"`
	}
	BrowserFrameReport struct {
		Room
		Frame string `json:"frame"`
		Url   string `json:"url"`
	}
	BrowserUrlReport struct {
		Room
		Url string `json:"url"`
	}
	BrowserCrashReport struct {
		Room
		Error string `json:"error"`
	}
)
