package targets

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/simcam/engine/core"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

/**
 * @brief Describes one off-screen image. The extent is either a fixed size or
 * a fraction of the surface extent.
 */
type Spec struct {
	Name string
	/** @brief The pass that writes the target. */
	Owner   string
	Format  metadata.Format
	Usage   metadata.TextureUsage
	Sampler metadata.SamplerMode
	/** @brief Fraction of the surface size. 0 means 1. Ignored when Fixed is set. */
	Scale float32
	Fixed metadata.Extent2D
}

func (s Spec) extentFor(surface metadata.Extent2D) metadata.Extent2D {
	if !s.Fixed.IsZero() {
		return s.Fixed
	}
	if s.Scale == 0 || s.Scale == 1 {
		return surface
	}
	return surface.Scale(s.Scale)
}

/**
 * @brief An image with its view and sampler, sized for the surface extent
 * of the last Recreate. A new ID is issued for every allocation.
 */
type OffscreenTarget struct {
	ID     uuid.UUID
	Spec   Spec
	Extent metadata.Extent2D
	Image  metadata.ImageHandle
}

func (t *OffscreenTarget) Valid() bool {
	return t != nil && t.Image != 0
}

/**
 * @brief Owns every off-screen target. Resizing destroys all targets and
 * rebuilds them; nothing is resized in place.
 */
type Manager struct {
	device     metadata.Device
	specs      []Spec
	targets    map[string]*OffscreenTarget
	surface    metadata.Extent2D
	generation uint64
}

func NewManager(device metadata.Device) *Manager {
	return &Manager{
		device:  device,
		targets: make(map[string]*OffscreenTarget),
	}
}

/**
 * @brief Registers a target. Targets are rebuilt in registration order, so
 * producers should be registered before their consumers. If the manager
 * already has a surface extent the target is allocated right away.
 */
func (m *Manager) Register(spec Spec) (*OffscreenTarget, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("target with empty name")
	}
	if _, ok := m.targets[spec.Name]; ok {
		return nil, fmt.Errorf("target %q registered twice", spec.Name)
	}
	t := &OffscreenTarget{Spec: spec}
	if !m.surface.IsZero() {
		if err := m.allocate(t); err != nil {
			return nil, err
		}
	}
	m.specs = append(m.specs, spec)
	m.targets[spec.Name] = t
	return t, nil
}

/**
 * @brief Destroys every managed target and rebuilds it for the surface
 * extent. The caller must make sure no submitted work still references the
 * targets. Every binding that referenced an old image is stale afterwards,
 * which Generation reports. On failure everything created by this call is
 * released again and an error wrapping core.ErrResourceCreation is returned.
 */
func (m *Manager) Recreate(surface metadata.Extent2D) error {
	if surface.IsZero() {
		return fmt.Errorf("%w: cannot size targets for a %s surface", core.ErrResourceCreation, surface)
	}
	m.release()
	m.generation++
	m.surface = surface

	for i, spec := range m.specs {
		t := m.targets[spec.Name]
		if err := m.allocate(t); err != nil {
			for j := i - 1; j >= 0; j-- {
				m.free(m.targets[m.specs[j].Name])
			}
			m.surface = metadata.Extent2D{}
			return err
		}
	}
	core.LogDebug("recreated %d off-screen targets for a %s surface (generation %d)", len(m.specs), surface, m.generation)
	return nil
}

func (m *Manager) allocate(t *OffscreenTarget) error {
	extent := t.Spec.extentFor(m.surface)
	image, err := m.device.CreateImage(metadata.ImageDesc{
		Name:    t.Spec.Name,
		Extent:  extent,
		Format:  t.Spec.Format,
		Usage:   t.Spec.Usage,
		Sampler: t.Spec.Sampler,
	})
	if err != nil {
		return fmt.Errorf("%w: target %q (%s %s): %v", core.ErrResourceCreation, t.Spec.Name, extent, t.Spec.Format, err)
	}
	t.ID = uuid.New()
	t.Extent = extent
	t.Image = image
	return nil
}

func (m *Manager) free(t *OffscreenTarget) {
	if t.Image != 0 {
		m.device.DestroyImage(t.Image)
	}
	t.Image = 0
	t.Extent = metadata.Extent2D{}
	t.ID = uuid.Nil
}

// release destroys in reverse registration order.
func (m *Manager) release() {
	for i := len(m.specs) - 1; i >= 0; i-- {
		m.free(m.targets[m.specs[i].Name])
	}
}

func (m *Manager) Get(name string) *OffscreenTarget {
	return m.targets[name]
}

// Names returns the registered target names in rebuild order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.specs))
	for i, s := range m.specs {
		names[i] = s.Name
	}
	return names
}

// Generation increases on every Recreate; bindings made at an older generation are stale.
func (m *Manager) Generation() uint64 {
	return m.generation
}

// Extent is the surface extent of the last successful Recreate.
func (m *Manager) Extent() metadata.Extent2D {
	return m.surface
}

func (m *Manager) Destroy() {
	m.release()
	m.surface = metadata.Extent2D{}
}
