package browser

import (
	"sync"

	"github.com/hallwayapps/browsergate/pkg/models"
)

// clickRing buffers recent in-page click events in insertion order, evicting
// the oldest once full.
type clickRing struct {
	mu     sync.Mutex
	events []models.ClickEvent
	cap    int
}

func newClickRing(capacity int) *clickRing {
	if capacity <= 0 {
		capacity = 100
	}
	return &clickRing{cap: capacity}
}

func (r *clickRing) add(events ...models.ClickEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, events...)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// since returns buffered events strictly after the given unix-millisecond
// timestamp; zero returns everything buffered.
func (r *clickRing) since(ts int64) []models.ClickEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.ClickEvent
	for _, e := range r.events {
		if ts > 0 && e.Timestamp <= ts {
			continue
		}
		out = append(out, e)
	}
	return out
}

// clickTrackerJS installs a capture-phase click listener that accumulates
// events in a page-global array. It is injected on every new document so it
// survives navigations; the Go side drains the array on demand.
const clickTrackerJS = `
() => {
	const w = window;
	if (w.__browsergateHooked) return true;
	w.__browsergateHooked = true;
	w.__browsergateClicks = [];

	document.addEventListener('click', (ev) => {
		try {
			const target = ev.target || {};
			w.__browsergateClicks.push({
				timestamp: Date.now(),
				targetId: target.id || '',
				targetTag: (target.tagName || '').toLowerCase(),
				text: (target.innerText || '').slice(0, 80),
				x: Math.round(ev.clientX),
				y: Math.round(ev.clientY)
			});
			if (w.__browsergateClicks.length > 200) {
				w.__browsergateClicks.splice(0, w.__browsergateClicks.length - 200);
			}
		} catch (e) {}
	}, true);
	return true;
}`

// drainClicksJS moves accumulated click events out of the page.
const drainClicksJS = `
() => {
	const w = window;
	if (!w.__browsergateClicks) return [];
	return w.__browsergateClicks.splice(0, w.__browsergateClicks.length);
}`
