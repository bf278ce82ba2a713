package graph

import (
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

/**
 * @brief The synchronization state of one resource at a point of the frame.
 */
type State struct {
	Layout metadata.ImageLayout
	/** @brief Stage and access of the last write, zero if never written. */
	WriteStage  metadata.PipelineStage
	WriteAccess metadata.AccessFlags
	/** @brief Stages that read the resource since the last write. */
	ReadStages metadata.PipelineStage
	/** @brief Stages and accesses the last write has been made visible to. */
	VisibleStages metadata.PipelineStage
	VisibleAccess metadata.AccessFlags
}

type States map[string]State

func (s States) clone() States {
	out := make(States, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

/**
 * @brief A barrier on a logical resource, resolved to a device handle at
 * record time.
 */
type Transition struct {
	Resource  string
	Buffer    bool
	SrcStage  metadata.PipelineStage
	DstStage  metadata.PipelineStage
	SrcAccess metadata.AccessFlags
	DstAccess metadata.AccessFlags
	OldLayout metadata.ImageLayout
	NewLayout metadata.ImageLayout
}

/** @brief The transitions to record before each node. */
type Plan struct {
	before map[string][]Transition
}

func (p *Plan) Before(node string) []Transition {
	return p.before[node]
}

/**
 * @brief Plans the barriers of one frame starting from the given resource
 * states, and returns the states at the end of the frame. Passing nil plans a
 * frame whose resources were all just created. Passing the returned states
 * back in plans a steady-state frame, which also orders each frame against
 * the one submitted before it.
 */
func (g *Graph) Plan(initial States) (*Plan, States) {
	states := initial.clone()
	for r := range g.transient {
		delete(states, r)
	}
	plan := &Plan{before: make(map[string][]Transition)}

	for _, n := range g.nodes {
		for _, u := range n.Uses {
			s := states[u.Resource]
			layoutChange := !u.Buffer && s.Layout != u.Layout
			var t Transition
			need := false

			if u.Write() {
				// WAW and WAR, and any layout change.
				if s.WriteStage != 0 || s.ReadStages != 0 || layoutChange {
					need = true
					t.SrcStage = s.WriteStage | s.ReadStages
					t.SrcAccess = s.WriteAccess
				}
			} else {
				raw := s.WriteStage != 0 &&
					(s.VisibleStages&u.Stage != u.Stage || s.VisibleAccess&u.Access != u.Access)
				if raw || layoutChange {
					need = true
					t.SrcStage = s.WriteStage
					t.SrcAccess = s.WriteAccess
					if layoutChange {
						t.SrcStage |= s.ReadStages
					}
				}
			}

			if need {
				if t.SrcStage == 0 {
					t.SrcStage = metadata.StageTopOfPipe
				}
				t.Resource = u.Resource
				t.Buffer = u.Buffer
				t.DstStage = u.Stage
				t.DstAccess = u.Access
				if !u.Buffer {
					t.OldLayout = s.Layout
					t.NewLayout = u.Layout
				}
				plan.before[n.Name] = append(plan.before[n.Name], t)
			}

			if u.Write() {
				s = State{
					Layout:      u.Layout,
					WriteStage:  u.Stage,
					WriteAccess: u.Access & accessWrites,
				}
			} else {
				if need {
					if layoutChange {
						// A layout transition is itself a write; earlier visibility is lost.
						s.VisibleStages = 0
						s.VisibleAccess = 0
					}
					s.VisibleStages |= u.Stage
					s.VisibleAccess |= u.Access
				}
				s.ReadStages |= u.Stage
				if !u.Buffer {
					s.Layout = u.Layout
				}
			}
			states[u.Resource] = s
		}
	}
	return plan, states
}

const accessWrites = metadata.AccessShaderWrite | metadata.AccessColorAttachmentWrite |
	metadata.AccessDepthAttachmentWrite | metadata.AccessTransferWrite | metadata.AccessHostWrite
