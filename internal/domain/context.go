package domain

// Route carries the routing metadata a Reply must be delivered with. A reply
// is only ever sent to the receiver recorded here; it is never redirected.
type Route struct {
	Receiver string // platform routing id: group id for group chats, sender id otherwise
}

// Context is the unit of work handed to the handling pipeline. It is owned
// by the dispatch engine for the duration of handling and is never touched
// by more than one worker.
//
// Type mirrors the source message's type but may be reclassified (a
// transcribed voice message becomes text before the pipeline sees it).
type Context struct {
	Type       MessageType
	Content    string
	IsGroup    bool
	Message    *InboundMessage // back-reference, non-owning
	SessionKey string          // stable per-conversation key for stateful collaborators
	Route      Route
}
