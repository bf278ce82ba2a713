package scene

import "fmt"

type ControlType int

const (
	// ControlKeyboard cameras follow the local keyboard only.
	ControlKeyboard ControlType = iota
	// ControlRemote cameras follow the keyboard and the remote velocity command.
	ControlRemote
)

type RigCamera struct {
	Name    string
	Camera  *Camera
	Control ControlType
}

/**
 * @brief A set of cameras of which exactly one is active.
 */
type Rig struct {
	cameras []*RigCamera
	active  int
}

func NewRig() *Rig {
	return &Rig{}
}

func (r *Rig) Add(name string, cam *Camera, control ControlType) error {
	for _, c := range r.cameras {
		if c.Name == name {
			return fmt.Errorf("camera %q already in the rig", name)
		}
	}
	r.cameras = append(r.cameras, &RigCamera{Name: name, Camera: cam, Control: control})
	return nil
}

// Active returns the active camera, or nil for an empty rig.
func (r *Rig) Active() *RigCamera {
	if len(r.cameras) == 0 {
		return nil
	}
	return r.cameras[r.active]
}

// Next activates the following camera, wrapping around.
func (r *Rig) Next() *RigCamera {
	if len(r.cameras) == 0 {
		return nil
	}
	r.active = (r.active + 1) % len(r.cameras)
	return r.cameras[r.active]
}

func (r *Rig) Select(name string) error {
	for i, c := range r.cameras {
		if c.Name == name {
			r.active = i
			return nil
		}
	}
	return fmt.Errorf("no camera named %q", name)
}

func (r *Rig) Len() int {
	return len(r.cameras)
}

/**
 * @brief Moves the active camera. Inactive cameras hold still.
 */
func (r *Rig) Update(keyboard, remote Twist, dt float32) {
	active := r.Active()
	if active == nil {
		return
	}
	active.Camera.Apply(keyboard, dt)
	if active.Control == ControlRemote && !remote.IsZero() {
		active.Camera.Apply(remote, dt)
	}
}
