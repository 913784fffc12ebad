package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionValidate(t *testing.T) {
	cases := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"navigate ok", Action{Type: ActionNavigate, URL: "https://example.com"}, false},
		{"navigate missing url", Action{Type: ActionNavigate}, true},
		{"click ok", Action{Type: ActionClick, Selector: "#go"}, false},
		{"click missing selector", Action{Type: ActionClick}, true},
		{"type ok", Action{Type: ActionTypeText, Selector: "#q", Text: "hi"}, false},
		{"type missing text", Action{Type: ActionTypeText, Selector: "#q"}, true},
		{"select missing value", Action{Type: ActionSelect, Selector: "#s"}, true},
		{"drag ok", Action{Type: ActionDrag, Selector: "#a", TargetSelector: "#b"}, false},
		{"drag missing target", Action{Type: ActionDrag, Selector: "#a"}, true},
		{"upload missing file", Action{Type: ActionUpload, Selector: "#f"}, true},
		{"scroll ok", Action{Type: ActionScroll, DeltaY: 100}, false},
		{"scroll missing deltas", Action{Type: ActionScroll}, true},
		{"screenshot ok", Action{Type: ActionScreenshot}, false},
		{"wait with selector", Action{Type: ActionWait, Selector: ".ready"}, false},
		{"wait with duration", Action{Type: ActionWait, DurationMs: 500}, false},
		{"wait missing both", Action{Type: ActionWait}, true},
		{"keypress ok", Action{Type: ActionKeyPress, Key: "enter"}, false},
		{"keypress missing key", Action{Type: ActionKeyPress}, true},
		{"tab new", Action{Type: ActionTab, TabCommand: "new"}, false},
		{"tab bad command", Action{Type: ActionTab, TabCommand: "destroy"}, true},
		{"unknown type", Action{Type: "teleport"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.action.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionTimeout(t *testing.T) {
	assert.Equal(t, 35*time.Second, Action{Type: ActionNavigate}.Timeout())
	assert.Equal(t, 10*time.Second, Action{Type: ActionClick}.Timeout())

	// Per-request override wins over the variant default
	override := Action{Type: ActionClick, TimeoutMs: 2500}
	assert.Equal(t, 2500*time.Millisecond, override.Timeout())

	// Wait timeouts cover the requested pause plus headroom
	wait := Action{Type: ActionWait, DurationMs: 4000}
	require.Greater(t, wait.Timeout(), 4*time.Second)
}

func TestCompactStateEmpty(t *testing.T) {
	empty := &CompactState{}
	assert.True(t, empty.Empty())

	assert.False(t, (&CompactState{Buttons: []InteractiveElement{{Selector: "#b"}}}).Empty())
	assert.False(t, (&CompactState{Tables: []Table{{Rows: [][]string{{"x"}}}}}).Empty())
}
