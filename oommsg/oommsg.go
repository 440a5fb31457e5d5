// Package oommsg provides the out-of-memory notification channel
// posted by the physical frame allocator (package mem) when its
// free-list and bump pointer are both exhausted. There is no page-out
// path, so there is nothing to reclaim in response; the channel exists
// so that tests and the bootstrap layer can observe exhaustion events
// without threading an extra return value through every allocation
// call site.
package oommsg

// Oommsg_t is sent on OomCh when the frame allocator cannot satisfy a
// request. Resume is unused by the kernel core (there is no reclaim
// path) but kept so a future page-out implementation has a place to
// signal "try again".
type Oommsg_t struct {
	Need   int
	Resume chan bool
}

// OomCh is notified, non-blockingly, when the system runs out of
// physical frames.
var OomCh = make(chan Oommsg_t, 16)

// Notify attempts to post an out-of-memory event for need frames. It
// never blocks: if no one is listening the event is simply dropped,
// since OOM is already being reported to the caller via -defs.ENOMEM.
func Notify(need int) {
	select {
	case OomCh <- Oommsg_t{Need: need}:
	default:
	}
}
