package httpx

import (
	"net"
	"testing"
)

type testListener struct {
	addr net.TCPAddr
}

func (tl testListener) Accept() (net.Conn, error) { return nil, nil }
func (tl testListener) Close() error              { return nil }
func (tl testListener) Addr() net.Addr            { return &tl.addr }

func NewTCP(port int) Listener {
	return Listener{testListener{addr: net.TCPAddr{Port: port}}}
}

func TestBuildAddress(t *testing.T) {
	tests := []struct {
		addr string
		ls   Listener
		rez  string
	}{
		{addr: "", rez: "localhost"},
		{addr: ":", ls: NewTCP(0), rez: "localhost"},
		{addr: "", ls: NewTCP(393), rez: "localhost:393"},
		{addr: ":8080", ls: NewTCP(8080), rez: "localhost:8080"},
		{addr: ":8080", ls: NewTCP(8081), rez: "localhost:8081"},
		{addr: "host:8080", ls: NewTCP(8080), rez: "host:8080"},
		{addr: "host:8080", ls: NewTCP(8081), rez: "host:8081"},
		{addr: ":80", ls: NewTCP(80), rez: "localhost"},
		{addr: ":", ls: NewTCP(344), rez: "localhost:344"},
		{addr: "[::]", rez: "[::]"},
	}

	for _, test := range tests {
		address := buildAddress(test.addr, test.ls)
		if address != test.rez {
			t.Errorf("expected %v, got %v", test.rez, address)
		}
	}
}

func TestMuxPrefix(t *testing.T) {
	m := NewServeMux("/api")
	tests := []struct{ in, out string }{
		{in: "/rooms", out: "/api/rooms"},
		{in: "GET /rooms/{code}", out: "GET /api/rooms/{code}"},
	}
	for _, test := range tests {
		if got := m.pattern(test.in); got != test.out {
			t.Errorf("expected %v, got %v", test.out, got)
		}
	}
}

func TestListenerPortRoll(t *testing.T) {
	first, err := NewListener("127.0.0.1:0", false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = first.Close() }()
	busy := first.Addr().String()

	if _, err := NewListener(busy, false); err == nil {
		t.Fatalf("expected the port %v to be busy", busy)
	}
	second, err := NewListener(busy, true)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = second.Close() }()
	if second.GetPort() == first.GetPort() {
		t.Errorf("port was not rolled")
	}
}
