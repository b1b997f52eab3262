package coordinator

// Bridge drives the shared browser of a room.
// Calls are made under the room lock and must not block.
type Bridge interface {
	Start(room string) error
	Stop(room string) error
	Navigate(room, url string) error
	Click(room string, x, y int) error
	Type(room, text string) error
	Keypress(room, key string) error
	Scroll(room string, dx, dy int) error
}

// BrowserEvents receives what the shared browsers report back.
type BrowserEvents interface {
	OnBrowserFrame(room, frame, url string)
	OnBrowserUrl(room, url string)
	OnBrowserCrash(room string, err error)
}
