// Package notice collects one-shot, user-facing status messages produced while
// handling a single request.
package notice

// Notices is a request-local message queue. The zero value is ready to use.
// A Notices must not be shared between requests.
type Notices struct {
	msgs []string
}

// Add appends a message.
func (n *Notices) Add(msg string) {
	n.msgs = append(n.msgs, msg)
}

// Drain returns all queued messages and empties the queue.
func (n *Notices) Drain() []string {
	msgs := n.msgs
	n.msgs = nil
	return msgs
}

// Merge moves every message of other to the end of n.
func (n *Notices) Merge(other *Notices) {
	n.msgs = append(n.msgs, other.Drain()...)
}

// Len returns the number of queued messages.
func (n *Notices) Len() int { return len(n.msgs) }

// Peek returns the queued messages without draining them.
func (n *Notices) Peek() []string {
	out := make([]string, len(n.msgs))
	copy(out, n.msgs)
	return out
}
