// network implements the address space and membership table for nodes. A
// network validates a base address once at creation, hands out node addresses
// under it and keeps track of one-hop links between registered nodes.
package network

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/meshwire/netsim/util"
)

var (
	ErrInvalidAddress    = errors.New("base address must be three or four octets between 0 and 255")
	ErrInvalidNodeNumber = errors.New("node number must be between 0 and 255")
	ErrDuplicateAddress  = errors.New("a node with the given address is already connected")
	ErrDuplicateName     = errors.New("a node with the given name is already connected")
	ErrNotConnected      = errors.New("target node is not connected to the network")
)

// DefaultLinkProbeDelay is the wait before a link probe reads the node's
// link state.
const DefaultLinkProbeDelay = 300 * time.Second

// Contract is the minimal shape the registry requires of a registering server.
// The registry does not depend on the full server type.
type Contract interface {
	GetName() string
	Connect(peer string)
}

// Node is one registry entry: a server's network presence.
type Node struct {
	Address  string
	Name     string
	contract Contract
	linked   bool
}

// Network is the membership table. Nodes are kept in join order.
type Network struct {
	mu         sync.Mutex
	address    string
	nodes      []*Node
	clock      clock.Clock
	probeDelay time.Duration
}

// New creates a network under the given base address.
func New(address string) (*Network, error) {
	return NewWithClock(address, clock.New(), DefaultLinkProbeDelay)
}

// NewWithClock creates a network with an explicit clock and link probe delay.
func NewWithClock(address string, clk clock.Clock, probeDelay time.Duration) (*Network, error) {
	octets := strings.Split(address, ".")
	if len(octets) < 3 || len(octets) > 4 {
		return nil, ErrInvalidAddress
	}
	for _, octet := range octets {
		value, err := strconv.Atoi(octet)
		if err != nil || value < 0 || value > 255 {
			return nil, ErrInvalidAddress
		}
	}
	return &Network{
		address:    address,
		nodes:      make([]*Node, 0),
		clock:      clk,
		probeDelay: probeDelay,
	}, nil
}

// Address returns the network's base address.
func (n *Network) Address() string {
	return n.address
}

// ConnectNode registers a server under base address + "." + number. The
// computed address and the name reported by the contract must both be unique;
// an address conflict is reported before a name conflict.
func (n *Network) ConnectNode(number int, contract Contract) (*Node, error) {
	if number < 0 || number > 255 {
		return nil, ErrInvalidNodeNumber
	}
	address := fmt.Sprintf("%s.%d", n.address, number)
	name := contract.GetName()
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, node := range n.nodes {
		if node.Address == address {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, address)
		}
	}
	for _, node := range n.nodes {
		if node.Name == name {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	node := &Node{
		Address:  address,
		Name:     name,
		contract: contract,
	}
	n.nodes = append(n.nodes, node)
	slog.Info("node connected to the network", "name", name, "address", address)
	return node, nil
}

// DisableNode removes the first node whose name matches. A missing name is a
// logged no-op.
func (n *Network) DisableNode(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, node := range n.nodes {
		if node.Name == name {
			n.nodes = append(n.nodes[:i], n.nodes[i+1:]...)
			slog.Info("node disabled", "name", name)
			return
		}
	}
	slog.Info("could not disable node: name not found", "name", name)
}

// LinkNodes links source to target. The target is resolved by name or address
// and its contract is notified of the link; both ends are marked linked. The
// source is resolved by name only and is not validated: an unknown source name
// does not abort the call.
func (n *Network) LinkNodes(source, target string) error {
	n.mu.Lock()
	var sourceNode, targetNode *Node
	for _, node := range n.nodes {
		if node.Name == source && sourceNode == nil {
			sourceNode = node
		}
		if (node.Name == target || node.Address == target) && targetNode == nil {
			targetNode = node
		}
	}
	if targetNode == nil {
		n.mu.Unlock()
		slog.Info("could not link: target is not connected to the network", "target", target)
		return fmt.Errorf("%w: %s", ErrNotConnected, target)
	}
	if sourceNode != nil {
		sourceNode.linked = true
	}
	targetNode.linked = true
	contract := targetNode.contract
	n.mu.Unlock()
	contract.Connect(source)
	return nil
}

// NamedNodes returns node names in join order.
func (n *Network) NamedNodes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.nodes))
	for _, node := range n.nodes {
		if node.Name != "" {
			names = append(names, node.Name)
		}
	}
	return names
}

// Linked reports the node's current link state.
func (n *Network) Linked(node *Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return node.linked
}

// CheckConnection schedules a single-shot probe that resolves with the node's
// link state after the configured delay. The probe reads live state: a node
// removed by DisableNode before the probe fires is still observed.
func (n *Network) CheckConnection(node *Node) *util.Probe {
	return util.NewProbe(n.clock, n.probeDelay, func() bool {
		return n.Linked(node)
	})
}
