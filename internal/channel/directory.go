package channel

import (
	"strings"
	"sync"

	"chatgate/internal/domain"
)

// directory indexes conversations observed during the current session so
// the publish collaborator can resolve human-readable names to routing ids.
// Adapters whose platform API offers no server-side search share this.
type directory struct {
	mu       sync.RWMutex
	contacts map[string]domain.Target // lowercase name -> target
	groups   map[string]domain.Target
}

func newDirectory() *directory {
	return &directory{
		contacts: make(map[string]domain.Target),
		groups:   make(map[string]domain.Target),
	}
}

// observe records the conversation a message arrived from.
func (d *directory) observe(msg *domain.InboundMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if msg.IsGroup && msg.GroupName != "" {
		d.groups[strings.ToLower(msg.GroupName)] = domain.Target{ID: msg.GroupID, Name: msg.GroupName}
	}
	if msg.SenderName != "" && !msg.IsSelf {
		d.contacts[strings.ToLower(msg.SenderName)] = domain.Target{ID: msg.SenderID, Name: msg.SenderName}
	}
}

func (d *directory) searchContacts(name string) []domain.Target {
	return d.search(d.contacts, name)
}

func (d *directory) searchGroups(name string) []domain.Target {
	return d.search(d.groups, name)
}

func (d *directory) search(m map[string]domain.Target, name string) []domain.Target {
	d.mu.RLock()
	defer d.mu.RUnlock()
	needle := strings.ToLower(name)
	var out []domain.Target
	for key, target := range m {
		if strings.Contains(key, needle) {
			out = append(out, target)
		}
	}
	return out
}
