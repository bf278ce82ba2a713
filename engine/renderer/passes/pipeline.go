package passes

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/config"
	"github.com/spaghettifunk/simcam/engine/renderer/graph"
)

// Resources the host writes between frames; the graph never orders them.
var externalResources = []string{ResUniforms, ResLensSurfaces, ResLensParams, ResExposureState}

/**
 * @brief The passes of the camera pipeline in the order they execute.
 */
type Pipeline struct {
	Shadow    *ShadowPass
	Scene     *ScenePass
	Bloom     *BloomPass
	Flare     *LensFlarePass
	Exposure  *ExposurePass
	Composite *CompositePass
}

func NewPipeline(cfg *config.Config, lens *LensSystem) (*Pipeline, error) {
	flare, err := NewLensFlarePass(cfg.Flare, lens)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Shadow:    NewShadowPass(cfg.Shadow),
		Scene:     NewScenePass(),
		Bloom:     NewBloomPass(cfg.Bloom),
		Flare:     flare,
		Exposure:  NewExposurePass(cfg.Exposure),
		Composite: NewCompositePass(cfg.Bloom, cfg.Flare, cfg.Capture.Enabled),
	}, nil
}

func (p *Pipeline) Passes() []Pass {
	return []Pass{p.Shadow, p.Scene, p.Bloom, p.Flare, p.Exposure, p.Composite}
}

/**
 * @brief Builds and validates the frame graph of the given passes. Node order
 * is the order of the passes and, within a pass, the order of its nodes.
 */
func BuildGraph(passes []Pass) (*graph.Graph, error) {
	g := graph.New()
	g.External(externalResources...)
	g.Transient(ResSurface)
	for _, p := range passes {
		for _, n := range p.Nodes() {
			if err := g.Add(n); err != nil {
				return nil, fmt.Errorf("pass %s: %w", p.Name(), err)
			}
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

/**
 * @brief Maps every node name to the pass that records it.
 */
func NodeOwners(passes []Pass) map[string]Pass {
	owners := make(map[string]Pass)
	for _, p := range passes {
		for _, n := range p.Nodes() {
			owners[n.Name] = p
		}
	}
	return owners
}
