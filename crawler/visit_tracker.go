package crawler

import (
	"sync"
)

// VisitTracker is the visited set of a single crawl, bounded by a page budget.
type VisitTracker struct {
	visited  map[string]struct{}
	maxPages int
	mutex    sync.RWMutex
}

// NewVisitTracker creates a tracker that admits at most maxPages URLs
func NewVisitTracker(maxPages int) *VisitTracker {
	return &VisitTracker{
		visited:  make(map[string]struct{}),
		maxPages: maxPages,
	}
}

// Visit records url and reports true if it was not seen before and the page
// budget still has room.
func (vt *VisitTracker) Visit(url string) bool {
	vt.mutex.Lock()
	defer vt.mutex.Unlock()

	if _, ok := vt.visited[url]; ok {
		return false
	}
	if len(vt.visited) >= vt.maxPages {
		return false
	}
	vt.visited[url] = struct{}{}
	return true
}

// IsVisited reports whether url has been recorded
func (vt *VisitTracker) IsVisited(url string) bool {
	vt.mutex.RLock()
	defer vt.mutex.RUnlock()

	_, ok := vt.visited[url]
	return ok
}

// Exhausted reports whether the page budget is used up
func (vt *VisitTracker) Exhausted() bool {
	vt.mutex.RLock()
	defer vt.mutex.RUnlock()

	return len(vt.visited) >= vt.maxPages
}

// Count returns the number of unique URLs visited
func (vt *VisitTracker) Count() int {
	vt.mutex.RLock()
	defer vt.mutex.RUnlock()

	return len(vt.visited)
}
