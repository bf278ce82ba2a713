package core

import "sync"

type KeyCode uint16

const (
	KEY_TAB    KeyCode = 0x09
	KEY_ESCAPE KeyCode = 0x1B
	KEY_SPACE  KeyCode = 0x20
	KEY_LEFT   KeyCode = 0x25
	KEY_UP     KeyCode = 0x26
	KEY_RIGHT  KeyCode = 0x27
	KEY_DOWN   KeyCode = 0x28
	KEY_A      KeyCode = 0x41
	KEY_C      KeyCode = 0x43
	KEY_D      KeyCode = 0x44
	KEY_E      KeyCode = 0x45
	KEY_Q      KeyCode = 0x51
	KEY_S      KeyCode = 0x53
	KEY_W      KeyCode = 0x57
	KEY_LSHIFT KeyCode = 0xA0

	KEYS_MAX_KEYS KeyCode = 0x100
)

type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// InputState holds the current and previous keyboard state.
type InputState struct {
	mu       sync.RWMutex
	current  KeyboardState
	previous KeyboardState
}

func NewInputState() *InputState {
	return &InputState{}
}

// Update copies the current state into the previous one. Call once per frame,
// after every consumer read the keys.
func (is *InputState) Update() {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.previous = is.current
}

func (is *InputState) IsKeyDown(key KeyCode) bool {
	is.mu.RLock()
	defer is.mu.RUnlock()
	return key < KEYS_MAX_KEYS && is.current.Keys[key]
}

func (is *InputState) WasKeyDown(key KeyCode) bool {
	is.mu.RLock()
	defer is.mu.RUnlock()
	return key < KEYS_MAX_KEYS && is.previous.Keys[key]
}

// Pressed reports a key that went down during the last frame.
func (is *InputState) Pressed(key KeyCode) bool {
	return is.IsKeyDown(key) && !is.WasKeyDown(key)
}

// ProcessKey records a key transition and fires the matching event when the state changed.
func (is *InputState) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	is.mu.Lock()
	changed := is.current.Keys[key] != pressed
	is.current.Keys[key] = pressed
	is.mu.Unlock()
	if !changed {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	ctx := EventContext{}
	ctx.Data.U16[0] = uint16(key)
	EventFire(code, nil, ctx)
}
