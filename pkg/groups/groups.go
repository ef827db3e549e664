// Package groups keeps named groups of connection IDs for targeted broadcast.
package groups

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// group is an ordered list of member IDs.
// The same ID may appear more than once; each occurrence is a separate delivery.
type group struct {
	lock    sync.Mutex // Protects members
	members []string
}

// Index maps group names to their members.
// It only references connection IDs; members whose connection has gone away
// stay in their groups until someone prunes them.
// All methods are safe for concurrent use, and changes to different groups never contend.
type Index struct {
	groups cmap.ConcurrentMap[string, *group]
}

// New makes an empty index.
func New() *Index {
	return &Index{groups: cmap.New[*group]()}
}

// AddMember appends connID to the named group, creating the group if needed.
func (idx *Index) AddMember(name, connID string) {
	g, ok := idx.groups.Get(name)
	if !ok {
		// Another caller may create the group first; whichever got there first wins.
		idx.groups.SetIfAbsent(name, &group{})
		g, _ = idx.groups.Get(name)
	}

	g.lock.Lock()
	g.members = append(g.members, connID)
	g.lock.Unlock()
}

// RemoveMember removes every occurrence of connID from the named group.
// It returns the number of occurrences removed.
func (idx *Index) RemoveMember(name, connID string) int {
	g, ok := idx.groups.Get(name)
	if !ok {
		return 0
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	kept := g.members[:0]
	for _, id := range g.members {
		if id != connID {
			kept = append(kept, id)
		}
	}
	removed := len(g.members) - len(kept)
	// Drop references held past the new length.
	for i := len(kept); i < len(g.members); i++ {
		g.members[i] = ""
	}
	g.members = kept
	return removed
}

// Members returns a copy of the named group's members, in the order they were added.
// ok is false if the group has never been created.
// An emptied group still exists, and returns an empty list.
func (idx *Index) Members(name string) (members []string, ok bool) {
	g, ok := idx.groups.Get(name)
	if !ok {
		return nil, false
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	members = make([]string, len(g.members))
	copy(members, g.members)
	return members, true
}

// Len returns the number of groups, including empty ones.
func (idx *Index) Len() int {
	return idx.groups.Count()
}

// Names returns the names of all groups, in no particular order.
func (idx *Index) Names() []string {
	return idx.groups.Keys()
}
