package consts

import "time"

// Network timeouts
const (
	// AcceptDeadline bounds each Accept call so the accept loop can
	// observe shutdown periodically.
	AcceptDeadline = 1 * time.Second
	// DefaultDialTimeout is the default timeout for client connections
	DefaultDialTimeout = 5 * time.Second
)

// Locking
const (
	// DefaultLockPollInterval is the delay between non-blocking lock
	// acquisition attempts while a session waits for the ledger lock.
	DefaultLockPollInterval = 100 * time.Millisecond
)

// Buffer sizes
const (
	// LineBufferSize is the buffered reader/writer size for wire channels
	LineBufferSize = 4 * 1024
)
