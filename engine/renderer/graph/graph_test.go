package graph

import (
	"testing"

	md "github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

func pingPong(t *testing.T) *Graph {
	t.Helper()
	g := New()
	g.External("uniforms")
	g.Transient("surface")
	nodes := []Node{
		{Name: "scene", Uses: []Use{
			BufferUse("uniforms", md.StageVertexShader, md.AccessUniformRead),
			Write("color", md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite),
		}},
		{Name: "blur", Uses: []Use{
			Read("color", md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
			Write("tmp", md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite),
		}},
		{Name: "composite", Uses: []Use{
			Read("tmp", md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
			Read("color", md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
			Write("surface", md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite),
		}},
		{Name: "present", Uses: []Use{
			Read("surface", md.LayoutPresent, md.StageBottomOfPipe, md.AccessNone),
		}},
	}
	for _, n := range nodes {
		if err := g.Add(n); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func find(ts []Transition, resource string) (Transition, bool) {
	for _, t := range ts {
		if t.Resource == resource {
			return t, true
		}
	}
	return Transition{}, false
}

func TestValidate(t *testing.T) {
	if err := pingPong(t).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	g := New()
	_ = g.Add(Node{Name: "a", Uses: []Use{Read("missing", md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead)}})
	if g.Validate() == nil {
		t.Errorf("read without producer accepted")
	}

	g = New()
	_ = g.Add(Node{Name: "w", Uses: []Use{Write("img", md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite)}})
	_ = g.Add(Node{Name: "inplace", Uses: []Use{
		Read("img", md.LayoutShaderRead, md.StageFragmentShader, md.AccessShaderRead),
		Write("img", md.LayoutColorAttachment, md.StageColorOutput, md.AccessColorAttachmentWrite),
	}})
	if g.Validate() == nil {
		t.Errorf("in-place read and write of an image accepted")
	}

	if err := g.Add(Node{Name: "w"}); err == nil {
		t.Errorf("duplicate node accepted")
	}
}

func TestEdgesAndRebuildOrder(t *testing.T) {
	g := pingPong(t)
	want := map[Edge]bool{
		{From: "scene", To: "blur", Resource: "color"}:          true,
		{From: "blur", To: "composite", Resource: "tmp"}:        true,
		{From: "scene", To: "composite", Resource: "color"}:     true,
		{From: "composite", To: "present", Resource: "surface"}: true,
	}
	edges := g.Edges()
	if len(edges) != len(want) {
		t.Fatalf("edges = %v", edges)
	}
	for _, e := range edges {
		if !want[e] {
			t.Errorf("unexpected edge %+v", e)
		}
	}
	order := g.RebuildOrder()
	if len(order) != 2 || order[0] != "color" || order[1] != "tmp" {
		t.Errorf("rebuild order = %v", order)
	}
}

func TestPlanReadAfterWrite(t *testing.T) {
	plan, _ := pingPong(t).Plan(nil)

	tr, ok := find(plan.Before("blur"), "color")
	if !ok {
		t.Fatalf("no barrier for color before blur")
	}
	if tr.SrcStage != md.StageColorOutput || tr.SrcAccess != md.AccessColorAttachmentWrite {
		t.Errorf("src = %v/%v", tr.SrcStage, tr.SrcAccess)
	}
	if tr.OldLayout != md.LayoutColorAttachment || tr.NewLayout != md.LayoutShaderRead {
		t.Errorf("layouts %v -> %v", tr.OldLayout, tr.NewLayout)
	}
	// Already visible to fragment reads in the right layout.
	if _, ok := find(plan.Before("composite"), "color"); ok {
		t.Errorf("redundant barrier for color before composite")
	}
	if _, ok := find(plan.Before("scene"), "uniforms"); ok {
		t.Errorf("barrier for a host-written external buffer")
	}
	first, ok := find(plan.Before("scene"), "color")
	if !ok || first.OldLayout != md.LayoutUndefined || first.NewLayout != md.LayoutColorAttachment {
		t.Errorf("first frame transition for color = %+v", first)
	}
}

func TestSteadyStatePlanOrdersAgainstPreviousFrame(t *testing.T) {
	g := pingPong(t)
	_, final := g.Plan(nil)
	steady, again := g.Plan(final)

	tr, ok := find(steady.Before("scene"), "color")
	if !ok {
		t.Fatalf("no write-after-read barrier for color in the steady state")
	}
	if tr.SrcStage&md.StageFragmentShader == 0 {
		t.Errorf("src stage %v does not cover the previous frame's readers", tr.SrcStage)
	}
	if tr.OldLayout != md.LayoutShaderRead {
		t.Errorf("old layout = %v", tr.OldLayout)
	}
	surf, ok := find(steady.Before("composite"), "surface")
	if !ok || surf.OldLayout != md.LayoutUndefined {
		t.Errorf("surface must restart from undefined, got %+v", surf)
	}
	if again["color"] != final["color"] {
		t.Errorf("steady state does not converge: %+v != %+v", again["color"], final["color"])
	}
}
