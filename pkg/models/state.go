package models

// StateType is the fidelity of a page-state read.
type StateType string

const (
	StateFull    StateType = "full"
	StateCompact StateType = "compact"
	StateLite    StateType = "lite"
)

// ElementNode is one node in the full structured element tree.
type ElementNode struct {
	Tag      string            `json:"tag"`
	Text     string            `json:"text,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []ElementNode     `json:"children,omitempty"`
}

// FrameState is the element tree of one iframe, keyed by its source URL.
type FrameState struct {
	URL  string        `json:"url"`
	Tree []ElementNode `json:"tree"`
}

// FullState is the entire structured element tree of the page.
type FullState struct {
	URL    string        `json:"url"`
	Title  string        `json:"title"`
	Tree   []ElementNode `json:"tree"`
	Frames []FrameState  `json:"frames,omitempty"`
}

// InteractiveElement is one actionable element in the compact listing.
type InteractiveElement struct {
	Selector string `json:"selector"`
	Text     string `json:"text,omitempty"`
	Kind     string `json:"kind,omitempty"` // input type, link href host, etc.
}

// Table is tabular data lifted out of the page for the compact listing.
type Table struct {
	Caption string     `json:"caption,omitempty"`
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows"`
}

// CompactState is the AI-oriented condensed page listing.
type CompactState struct {
	URL     string               `json:"url"`
	Title   string               `json:"title"`
	Buttons []InteractiveElement `json:"buttons"`
	Links   []InteractiveElement `json:"links"`
	Inputs  []InteractiveElement `json:"inputs"`
	Tables  []Table              `json:"tables,omitempty"`
}

// Empty reports whether the read observed no interactive elements and no
// tabular data, the signal that triggers the extraction retry.
func (c *CompactState) Empty() bool {
	return len(c.Buttons) == 0 && len(c.Links) == 0 && len(c.Inputs) == 0 && len(c.Tables) == 0
}

// LiteState is the cheapest fidelity: just enough to confirm where we are.
type LiteState struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	ElementCount int    `json:"elementCount"`
}

// StateResult is a point-in-time snapshot tagged by fidelity. Exactly one of
// the typed fields is populated, matching StateType.
type StateResult struct {
	StateType StateType     `json:"stateType"`
	Full      *FullState    `json:"-"`
	Compact   *CompactState `json:"-"`
	Lite      *LiteState    `json:"-"`
}

// State returns the populated variant for serialization.
func (r *StateResult) State() any {
	switch r.StateType {
	case StateFull:
		return r.Full
	case StateCompact:
		return r.Compact
	case StateLite:
		return r.Lite
	}
	return nil
}

// ClickEvent is one captured in-page click, buffered for UI replay.
type ClickEvent struct {
	Timestamp int64  `json:"timestamp"` // unix milliseconds, page clock
	TargetID  string `json:"targetId,omitempty"`
	TargetTag string `json:"targetTag,omitempty"`
	Text      string `json:"text,omitempty"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}
