package core

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/golang/glog"
)

// IDMask limits registry ids to the bits a Result leaves free for flags.
const IDMask uint32 = 0x3FFFFFFF

// Registry stores error and warning messages under small integer ids.
// A message is removed the first time it is read.
type Registry struct {
	mu       sync.Mutex
	next     uint32
	messages *treemap.Map // uint32 -> string, ordered by id
}

// Errors is the process-wide registry every Result reports through.
// It lives for the whole process and is never torn down.
var Errors = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		messages: treemap.NewWith(utils.UInt32Comparator),
	}
}

// Record stores message under a fresh id and returns the id.
// Ids increase monotonically and wrap to zero inside IDMask.
func (r *Registry) Record(message string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.messages.Put(id, message)
	r.next = (r.next + 1) & IDMask
	return id
}

// PrependContext inserts context on its own line before the message for id.
func (r *Registry) PrependContext(id uint32, context string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id &= IDMask
	existing, _ := r.messages.Get(id)
	message, _ := existing.(string)
	r.messages.Put(id, context+"\n"+message)
}

// AppendMessage adds message on its own line after the message for id.
func (r *Registry) AppendMessage(id uint32, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id &= IDMask
	existing, found := r.messages.Get(id)
	if !found {
		r.messages.Put(id, message)
		return
	}
	r.messages.Put(id, existing.(string)+"\n"+message)
}

// Take returns the message for id and removes it.
// An empty string is returned when nothing is stored under id.
func (r *Registry) Take(id uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id &= IDMask
	value, found := r.messages.Get(id)
	if !found {
		return ""
	}
	r.messages.Remove(id)
	return value.(string)
}

// Len returns the number of unread messages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages.Size()
}

// Pending returns all unread messages ordered by id without removing them.
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	values := r.messages.Values()
	pending := make([]string, 0, len(values))
	for _, value := range values {
		pending = append(pending, value.(string))
	}
	return pending
}

// ReportUnhandled logs every unread message. An unread message means a
// Result carried an error that nobody looked at.
func (r *Registry) ReportUnhandled() int {
	pending := r.Pending()
	if len(pending) == 0 {
		return 0
	}
	glog.Warningf("Unhandled errors: %d", len(pending))
	for _, message := range pending {
		glog.Warningf("  %s", message)
	}
	return len(pending)
}

// ReportUnhandled reports unread messages of the process-wide registry.
// Binaries call it once on shutdown.
func ReportUnhandled() int {
	return Errors.ReportUnhandled()
}
