package coordinator

import "github.com/watchparty/coordinator/pkg/com"

// Registry knows every live participant connection, joined or not.
type Registry struct {
	conns *com.Map[com.Uid, *Conn]
}

func NewRegistry() *Registry { return &Registry{conns: com.NewMap[com.Uid, *Conn]()} }

func (r *Registry) Add(c *Conn) {
	r.conns.Put(c.Id, c)
	connectedParticipants.Set(float64(r.conns.Len()))
}

func (r *Registry) Remove(c *Conn) {
	r.conns.Remove(c.Id)
	connectedParticipants.Set(float64(r.conns.Len()))
}

// Shutdown closes every registered connection and tells how many there were.
func (r *Registry) Shutdown(code int, reason string) (n int) {
	r.conns.ForEach(func(c *Conn) {
		c.Shutdown(code, reason)
		n++
	})
	return
}

func (r *Registry) Len() int { return r.conns.Len() }
