package graph

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

/**
 * @brief How a node touches one logical resource. Layout is ignored for buffers.
 */
type Use struct {
	Resource string
	Buffer   bool
	Layout   metadata.ImageLayout
	Stage    metadata.PipelineStage
	Access   metadata.AccessFlags
}

// Write reports whether the use modifies the resource.
func (u Use) Write() bool {
	return u.Access.IsWrite()
}

func Read(resource string, layout metadata.ImageLayout, stage metadata.PipelineStage, access metadata.AccessFlags) Use {
	return Use{Resource: resource, Layout: layout, Stage: stage, Access: access}
}

func Write(resource string, layout metadata.ImageLayout, stage metadata.PipelineStage, access metadata.AccessFlags) Use {
	return Use{Resource: resource, Layout: layout, Stage: stage, Access: access}
}

func BufferUse(resource string, stage metadata.PipelineStage, access metadata.AccessFlags) Use {
	return Use{Resource: resource, Buffer: true, Stage: stage, Access: access}
}

/** @brief One pass, or one step of a pass, in execution order. */
type Node struct {
	Name string
	Uses []Use
}

/** @brief A producer to consumer dependency on a resource. */
type Edge struct {
	From     string
	To       string
	Resource string
}

/**
 * @brief A fixed, ordered list of nodes. The order is the execution order;
 * Validate checks that it respects every data dependency.
 */
type Graph struct {
	nodes     []Node
	index     map[string]int
	external  map[string]bool
	transient map[string]bool
}

func New() *Graph {
	return &Graph{
		index:     make(map[string]int),
		external:  make(map[string]bool),
		transient: make(map[string]bool),
	}
}

func (g *Graph) Add(node Node) error {
	if _, ok := g.index[node.Name]; ok {
		return fmt.Errorf("node %q added twice", node.Name)
	}
	g.index[node.Name] = len(g.nodes)
	g.nodes = append(g.nodes, node)
	return nil
}

// External marks resources that are produced outside the graph, by the host or the surface.
func (g *Graph) External(resources ...string) {
	for _, r := range resources {
		g.external[r] = true
	}
}

// Transient marks images whose contents never carry over between frames, such as the
// acquired surface image. Plans always start them from the undefined layout.
func (g *Graph) Transient(resources ...string) {
	for _, r := range resources {
		g.transient[r] = true
		g.external[r] = true
	}
}

func (g *Graph) Nodes() []Node {
	return g.nodes
}

func (g *Graph) Node(name string) (Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Edges returns, for every read, the edge from the most recent earlier writer.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	lastWriter := make(map[string]string)
	for _, n := range g.nodes {
		for _, u := range n.Uses {
			if w, ok := lastWriter[u.Resource]; ok && w != n.Name {
				if !u.Write() || isRead(u.Access) {
					edges = append(edges, Edge{From: w, To: n.Name, Resource: u.Resource})
				}
			}
		}
		for _, u := range n.Uses {
			if u.Write() {
				lastWriter[u.Resource] = n.Name
			}
		}
	}
	return edges
}

const readMask = metadata.AccessUniformRead | metadata.AccessShaderRead |
	metadata.AccessColorAttachmentRead | metadata.AccessDepthAttachmentRead |
	metadata.AccessTransferRead | metadata.AccessHostRead

func isRead(a metadata.AccessFlags) bool {
	return a&readMask != 0
}

/**
 * @brief Checks that every resource read by a node was written by an earlier
 * node or is external, and that no node both samples and writes the same
 * image. Read-modify-write of a buffer by a single node is allowed.
 */
func (g *Graph) Validate() error {
	written := make(map[string]bool)
	for _, n := range g.nodes {
		reads := make(map[string]bool)
		writes := make(map[string]bool)
		for _, u := range n.Uses {
			if !u.Write() {
				if !written[u.Resource] && !g.external[u.Resource] {
					return fmt.Errorf("node %q reads %q before any node writes it", n.Name, u.Resource)
				}
				if !u.Buffer {
					reads[u.Resource] = true
				}
				continue
			}
			if !u.Buffer {
				writes[u.Resource] = true
			}
		}
		for r := range reads {
			if writes[r] {
				return fmt.Errorf("node %q reads and writes image %q", n.Name, r)
			}
		}
		for _, u := range n.Uses {
			if u.Write() {
				written[u.Resource] = true
			}
		}
	}
	return nil
}

/**
 * @brief Returns the images written by the graph in the order their first
 * producer runs. Off-screen targets are rebuilt in this order.
 */
func (g *Graph) RebuildOrder() []string {
	var order []string
	seen := make(map[string]bool)
	for _, n := range g.nodes {
		for _, u := range n.Uses {
			if u.Buffer || !u.Write() || seen[u.Resource] || g.external[u.Resource] {
				continue
			}
			seen[u.Resource] = true
			order = append(order, u.Resource)
		}
	}
	return order
}
