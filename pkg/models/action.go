package models

import (
	"fmt"
	"time"
)

// ActionType enumerates the closed set of browser actions the agent can issue.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionTypeText   ActionType = "type"
	ActionHover      ActionType = "hover"
	ActionSelect     ActionType = "select"
	ActionDrag       ActionType = "drag"
	ActionUpload     ActionType = "upload"
	ActionScroll     ActionType = "scroll"
	ActionScreenshot ActionType = "screenshot"
	ActionWait       ActionType = "wait"
	ActionKeyPress   ActionType = "keypress"
	ActionTab        ActionType = "tab"
)

// Action is one discrete browser instruction. Type selects the variant and
// determines which of the remaining fields are required; Validate enforces
// that per variant so handlers never have to probe for field presence.
type Action struct {
	Type ActionType `json:"type"`

	// navigate, tab(new)
	URL string `json:"url,omitempty"`

	// click, type, hover, select, upload, wait, drag (source)
	Selector string `json:"selector,omitempty"`

	// type
	Text string `json:"text,omitempty"`

	// select
	Value string `json:"value,omitempty"`

	// drag
	TargetSelector string `json:"targetSelector,omitempty"`

	// upload
	FilePath string `json:"filePath,omitempty"`

	// scroll
	DeltaX int `json:"deltaX,omitempty"`
	DeltaY int `json:"deltaY,omitempty"`

	// screenshot
	FullPage bool `json:"fullPage,omitempty"`

	// wait (either a fixed pause or a selector to wait for)
	DurationMs int `json:"durationMs,omitempty"`

	// keypress
	Key string `json:"key,omitempty"`

	// tab: "new", "list" or "activate"
	TabCommand string `json:"tabCommand,omitempty"`
	TabIndex   int    `json:"tabIndex,omitempty"`

	// optional per-request override of the variant's default timeout
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// Validate checks the variant-specific required fields.
func (a Action) Validate() error {
	switch a.Type {
	case ActionNavigate:
		if a.URL == "" {
			return fmt.Errorf("navigate requires url")
		}
	case ActionClick, ActionHover:
		if a.Selector == "" {
			return fmt.Errorf("%s requires selector", a.Type)
		}
	case ActionTypeText:
		if a.Selector == "" || a.Text == "" {
			return fmt.Errorf("type requires selector and text")
		}
	case ActionSelect:
		if a.Selector == "" || a.Value == "" {
			return fmt.Errorf("select requires selector and value")
		}
	case ActionDrag:
		if a.Selector == "" || a.TargetSelector == "" {
			return fmt.Errorf("drag requires selector and targetSelector")
		}
	case ActionUpload:
		if a.Selector == "" || a.FilePath == "" {
			return fmt.Errorf("upload requires selector and filePath")
		}
	case ActionScroll:
		if a.DeltaX == 0 && a.DeltaY == 0 {
			return fmt.Errorf("scroll requires deltaX or deltaY")
		}
	case ActionScreenshot:
		// no required fields
	case ActionWait:
		if a.Selector == "" && a.DurationMs <= 0 {
			return fmt.Errorf("wait requires selector or durationMs")
		}
	case ActionKeyPress:
		if a.Key == "" {
			return fmt.Errorf("keypress requires key")
		}
	case ActionTab:
		switch a.TabCommand {
		case "new", "list", "activate":
		default:
			return fmt.Errorf("tab requires tabCommand of new, list or activate")
		}
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return nil
}

// Timeout returns the deadline for this action, honoring a per-request
// override. Navigation and uploads get more headroom than point interactions.
func (a Action) Timeout() time.Duration {
	if a.TimeoutMs > 0 {
		return time.Duration(a.TimeoutMs) * time.Millisecond
	}
	switch a.Type {
	case ActionNavigate:
		return 35 * time.Second
	case ActionUpload, ActionScreenshot:
		return 20 * time.Second
	case ActionWait:
		if a.DurationMs > 0 {
			return time.Duration(a.DurationMs)*time.Millisecond + 5*time.Second
		}
		return 15 * time.Second
	default:
		return 10 * time.Second
	}
}

// TabInfo describes one open tab for the tab-management action.
type TabInfo struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// ActionResult carries the variant-specific output of a completed action.
type ActionResult struct {
	Type       ActionType `json:"type"`
	URL        string     `json:"url,omitempty"`
	Screenshot string     `json:"screenshot,omitempty"` // base64 PNG
	Tabs       []TabInfo  `json:"tabs,omitempty"`
}
