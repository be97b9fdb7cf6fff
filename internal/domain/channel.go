package domain

import "context"

// Target is a resolved routing destination, as returned by the contact and
// group search operations.
type Target struct {
	ID   string
	Name string
}

// Channel is the contract every platform adapter implements. One Channel
// implementation is constructed at process start and owned by a single
// long-lived handle; there is no hidden registry.
type Channel interface {
	Name() string

	// Startup performs login/session establishment and blocks in the
	// platform receive loop until ctx is cancelled. A platform reconnect
	// re-enters the receive loop without re-running process init; state
	// such as the dedup cache persists for the process lifetime.
	Startup(ctx context.Context) error

	// Send delivers one reply to the receiver recorded in route. It must
	// handle every ReplyType; for URL media types the adapter fetches the
	// remote resource before handing bytes to the platform SDK, and a
	// fetch failure surfaces as a send failure.
	Send(reply *Reply, route Route) error

	// SearchContacts and SearchGroups resolve human-readable names to
	// routing targets. Used by the publish/broadcast collaborator.
	SearchContacts(name string) []Target
	SearchGroups(name string) []Target
}

// Pipeline is the handling collaborator: it turns a Context into at most one
// Reply. Implementations must tolerate concurrent calls from different
// workers. Returning (nil, nil) means "nothing to say".
type Pipeline interface {
	Handle(ctx context.Context, c *Context) (*Reply, error)
}
