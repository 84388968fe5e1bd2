package firing

import "github.com/preesm/spider2-sub002/pisdf"

// ConfigRef identifies one CONFIG actor firing within the handler tree.
type ConfigRef struct {
	Handler  *Handler
	VertexIx int
}

// PendingConfigActors walks every handler already instantiated under root
// (it never creates a handler that scheduling hasn't reached yet) and
// collects every CONFIG vertex whose declared output parameters aren't all
// resolved, so the engine knows which handlers AwaitParams must still wait
// on after a wave.
func PendingConfigActors(root *Handler) []ConfigRef {
	var out []ConfigRef
	var walk func(h *Handler)
	walk = func(h *Handler) {
		for _, v := range h.Graph.Vertices {
			if v.Subtype != pisdf.Config {
				continue
			}
			if configResolved(h, v) {
				continue
			}
			out = append(out, ConfigRef{Handler: h, VertexIx: v.Index})
		}
		for _, c := range h.Children() {
			walk(c)
		}
	}
	walk(root)
	return out
}

func configResolved(h *Handler, v *pisdf.Vertex) bool {
	if len(v.OutParams) == 0 {
		return true
	}
	for _, pix := range v.OutParams {
		if !h.ParamSet(pix) {
			return false
		}
	}
	return true
}
