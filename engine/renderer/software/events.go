package software

import "fmt"

type EventKind int

const (
	EventSubmit EventKind = iota
	EventExecute
	EventWaitFence
	EventWaitIdle
	EventWriteBuffer
	EventReadBuffer
	EventAcquire
	EventPresent
	EventRecreateSurface
)

func (k EventKind) String() string {
	switch k {
	case EventSubmit:
		return "submit"
	case EventExecute:
		return "execute"
	case EventWaitFence:
		return "wait-fence"
	case EventWaitIdle:
		return "wait-idle"
	case EventWriteBuffer:
		return "write-buffer"
	case EventReadBuffer:
		return "read-buffer"
	case EventAcquire:
		return "acquire"
	case EventPresent:
		return "present"
	case EventRecreateSurface:
		return "recreate-surface"
	}
	return "unknown"
}

/**
 * @brief One entry of the device's event log. Handle is the fence, buffer or
 * surface index the event refers to.
 */
type Event struct {
	Kind   EventKind
	Slot   int
	Label  string
	Handle uint64
	Name   string
}

func (e Event) String() string {
	return fmt.Sprintf("%s slot=%d label=%q handle=%d name=%q", e.Kind, e.Slot, e.Label, e.Handle, e.Name)
}

func (d *Device) log(e Event) {
	d.events = append(d.events, e)
}

// Events returns the log recorded since the last ClearEvents.
func (d *Device) Events() []Event { return d.events }

func (d *Device) ClearEvents() { d.events = nil }
