package cluster

import "errors"

// Error taxonomy shared by every component. Callers classify with errors.Is.
var (
	// ErrTransientUnreachable covers network failures and timeouts; retried by the enclosing loop's budget
	ErrTransientUnreachable = errors.New("node unreachable")
	// ErrPermanentConfig covers bad credentials and missing configuration; fatal at startup
	ErrPermanentConfig = errors.New("permanent configuration error")
	// ErrPartialBootstrap marks an interrupted bootstrap copy; the target must be re-seeded from scratch
	ErrPartialBootstrap = errors.New("bootstrap sync did not complete")
	// ErrDuplicatePromotion is informational only: a second promotion signal is a success
	ErrDuplicatePromotion = errors.New("promotion already signalled")
)

// Topology errors
var (
	ErrEmptyServiceName = errors.New("service name cannot be empty")
	ErrInvalidPort      = errors.New("port must be between 1 and 65535")
	ErrUnknownRole      = errors.New("unknown role")
)

// Bootstrap errors
var (
	ErrAlreadyInitialized = errors.New("data directory already initialized")
	ErrNoPeerForBootstrap = errors.New("no live peer to bootstrap standby from")
	ErrDivergedPrimary    = errors.New("local data was primary but peer is now acting primary")
)

// Failover errors
var (
	ErrPromotionFailed = errors.New("promotion request failed")
	ErrReattachFailed  = errors.New("reattach failed")
	ErrNodeDown        = errors.New("node is still down")
)
