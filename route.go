package dyplo

// RouteMode defines how output channel is connected to input channel.
type RouteMode int

const (
	// Loopback routes output channel directly into input channel.
	Loopback RouteMode = iota
	// ThroughNode routes output channel into node and node into input
	// channel.
	ThroughNode
)

func (m RouteMode) String() string {
	if m == Loopback {
		return "loopback"
	}
	return "through-node"
}

// Route is a set of edges established for a pipeline. It's immutable
// once created.
type Route struct {
	mode  RouteMode
	edges []Edge
}

func loopback(out, in Endpoint) Route {
	return Route{
		mode:  Loopback,
		edges: []Edge{{From: out, To: in}},
	}
}

func throughNode(out, node, in Endpoint) Route {
	return Route{
		mode: ThroughNode,
		edges: []Edge{
			{From: out, To: node},
			{From: node, To: in},
		},
	}
}

// Mode returns route mode.
func (r Route) Mode() RouteMode {
	return r.mode
}

// Edges returns a copy of route edges.
func (r Route) Edges() []Edge {
	return append([]Edge(nil), r.edges...)
}
