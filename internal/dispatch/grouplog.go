package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chatgate/internal/domain"
)

// GroupLog appends group chat messages to one file per conversation per day:
// <dir>/<group>/<YYYY-MM-DD>.txt, one "[timestamp] sender: content" line per
// message. Appends to the same file are serialized so concurrent workers
// never interleave partial lines.
type GroupLog struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // one writer lock per file path
}

func NewGroupLog(dir string) *GroupLog {
	return &GroupLog{
		dir:   dir,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// Append writes one log line for msg. Callers treat failure as best-effort:
// a logging error never blocks dispatch.
func (g *GroupLog) Append(msg *domain.InboundMessage) error {
	group := msg.GroupName
	if group == "" {
		group = msg.GroupID
	}
	day := g.now().Format("2006-01-02")
	path := filepath.Join(g.dir, sanitizePathComponent(group), day+".txt")

	lock := g.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create group log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open group log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s: %s\n",
		msg.CreateTime.Format("2006-01-02 15:04:05"),
		msg.SenderName,
		msg.Content,
	)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append group log: %w", err)
	}
	return nil
}

func (g *GroupLog) lockFor(path string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[path]
	if !ok {
		l = &sync.Mutex{}
		g.locks[path] = l
	}
	return l
}

// sanitizePathComponent keeps group names from escaping the log directory.
func sanitizePathComponent(name string) string {
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		name = "_unnamed"
	}
	return name
}
