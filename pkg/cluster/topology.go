package cluster

import "strings"

// Topology is what a node knows about the pair it belongs to.
type Topology struct {
	Self      Node
	Peer      Node
	HAEnabled bool
}

var roleTokens = []struct {
	token, twin string
	role        Role
}{
	{"master", "slave", RolePrimary},
	{"MASTER", "SLAVE", RolePrimary},
	{"slave", "master", RoleStandby},
	{"SLAVE", "MASTER", RoleStandby},
}

// ResolveTopology derives this node's declared role and its peer from the
// service name. A name carrying a role token enables HA and names the peer by
// swapping the token; any other name is a standalone node whose peer is itself.
// Service names double as resolvable host names.
func ResolveTopology(serviceName string, port int) (Topology, error) {
	if serviceName == "" {
		return Topology{}, ErrEmptyServiceName
	}
	if port < 1 || port > 65535 {
		return Topology{}, ErrInvalidPort
	}

	for _, rt := range roleTokens {
		if !strings.Contains(serviceName, rt.token) {
			continue
		}
		peerName := strings.Replace(serviceName, rt.token, rt.twin, 1)
		peerRole := RoleStandby
		if rt.role == RoleStandby {
			peerRole = RolePrimary
		}
		return Topology{
			Self:      Node{Name: serviceName, Host: serviceName, Port: port, DeclaredRole: rt.role, PoolIndex: poolIndex(rt.role)},
			Peer:      Node{Name: peerName, Host: peerName, Port: port, DeclaredRole: peerRole, PoolIndex: poolIndex(peerRole)},
			HAEnabled: true,
		}, nil
	}

	self := Node{Name: serviceName, Host: serviceName, Port: port, DeclaredRole: RoleUnknown}
	return Topology{Self: self, Peer: self}, nil
}

// poolIndex mirrors the backend order in pgpool.conf: primary first.
func poolIndex(r Role) int {
	if r == RoleStandby {
		return 1
	}
	return 0
}
