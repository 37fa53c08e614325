package replication

import "errors"

var (
	// ErrOutsideDomain is returned for an update whose DN is not under the
	// domain's base DN
	ErrOutsideDomain = errors.New("entry outside replicated subtree")

	// ErrBaseDNMismatch is returned when a peer starts a session for another
	// base DN
	ErrBaseDNMismatch = errors.New("peer replicates a different base DN")

	// ErrNotStartMessage is returned when a session is opened with a message
	// that is not a server start message
	ErrNotStartMessage = errors.New("not a server start message")

	// ErrSelfSession is returned when a peer announces the local replica id
	ErrSelfSession = errors.New("peer uses the local replica id")

	// ErrDomainClosed is returned after Close
	ErrDomainClosed = errors.New("replication domain closed")
)
