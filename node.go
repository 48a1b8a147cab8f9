package dyplo

import "fmt"

// Node is an exclusively claimed processing node loaded with a filter.
// Nodes are created by NodeAllocator in disabled state and must be
// enabled only after routes are wired.
type Node struct {
	handle  NodeHandle
	filter  string
	enabled bool
	closed  bool
}

// ID returns node index.
func (n *Node) ID() int {
	return n.handle.ID()
}

// Filter returns the name of the filter node was programmed with.
func (n *Node) Filter() string {
	return n.filter
}

// Enabled returns true if node is processing data.
func (n *Node) Enabled() bool {
	return n.enabled
}

// Endpoint returns the endpoint of the node's first fifo.
func (n *Node) Endpoint() Endpoint {
	return n.handle.Endpoint(0)
}

// Enable starts data processing in the node.
func (n *Node) Enable() error {
	if n.closed {
		return fmt.Errorf("enable node: %w", ErrInvalidState)
	}
	if n.enabled {
		return nil
	}
	if err := n.handle.Enable(); err != nil {
		return hardwareError("enable node", err)
	}
	n.enabled = true
	return nil
}

// Disable stops data processing in the node.
func (n *Node) Disable() error {
	if n.closed || !n.enabled {
		return nil
	}
	if err := n.handle.Disable(); err != nil {
		return hardwareError("disable node", err)
	}
	n.enabled = false
	return nil
}

// Close disables the node and releases its slot. Subsequent calls are
// no-op.
func (n *Node) Close() error {
	if n == nil || n.closed {
		return nil
	}
	var errs execErrors
	errs = errs.add(n.Disable())
	n.closed = true
	if err := n.handle.Close(); err != nil {
		errs = errs.add(hardwareError("close node", err))
	}
	return errs.ret()
}

func (n *Node) String() string {
	return fmt.Sprintf("node %d (%s)", n.handle.ID(), n.filter)
}
