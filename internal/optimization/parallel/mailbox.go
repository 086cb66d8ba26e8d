package parallel

import "github.com/copyleftdev/tourga/internal/optimization"

// mailbox holds at most one unread snapshot. A newer snapshot replaces an
// unread older one, so the sending worker never waits on the coordinator.
// Each mailbox has a single sender.
type mailbox struct {
	ch chan optimization.Snapshot
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan optimization.Snapshot, 1)}
}

// post stores s, discarding any snapshot not yet read.
func (m *mailbox) post(s optimization.Snapshot) {
	for {
		select {
		case m.ch <- s:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// poll returns the pending snapshot, if any, without blocking.
func (m *mailbox) poll() (optimization.Snapshot, bool) {
	select {
	case s := <-m.ch:
		return s, true
	default:
		return optimization.Snapshot{}, false
	}
}
