package cluster

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Role is the role a node declares by naming convention at process start
type Role int

const (
	RoleUnknown Role = iota
	RolePrimary
	RoleStandby
)

// String returns the string representation of a Role
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "PRIMARY"
	case RoleStandby:
		return "STANDBY"
	default:
		return "UNKNOWN"
	}
}

// ParseRole accepts PRIMARY/STANDBY as well as the legacy MASTER/SLAVE spellings
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PRIMARY", "MASTER":
		return RolePrimary, nil
	case "STANDBY", "SLAVE", "REPLICA":
		return RoleStandby, nil
	case "UNKNOWN", "":
		return RoleUnknown, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Node is the static identity of one database node. It is built once at
// startup and never mutated; the pool's routing table owns the effective role.
type Node struct {
	Name         string
	Host         string
	Port         int
	DeclaredRole Role
	// PoolIndex is the backend number pgpool knows this node by.
	PoolIndex int
}

// Addr returns host:port suitable for dialing
func (n Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

func (n Node) String() string {
	return fmt.Sprintf("%s(%s,%s)", n.Name, n.Addr(), n.DeclaredRole)
}
