package domain

import "time"

// Protocol and relay limits.
const (
	// MaxUDPMessageSize is the classic RFC 1035 UDP payload limit. Reads and
	// built answers never exceed it.
	MaxUDPMessageSize = 512

	// HeaderSize is the fixed DNS header length.
	HeaderSize = 12

	// MaxLabelLength and MaxNameLength bound decoded and encoded names.
	MaxLabelLength = 63
	MaxNameLength  = 255

	// MaxPointerJumps caps compression pointer follows within a single name.
	MaxPointerJumps = 10

	// MaxInflight is the size of the upstream slot table. Wire IDs 1..MaxInflight
	// map to slot indices 0..MaxInflight-1.
	MaxInflight = 1024

	// MaxCNAMEDepth bounds alias following during cache lookups.
	MaxCNAMEDepth = 5

	// QueryTimeout is how long a forwarded query may wait for its upstream reply.
	QueryTimeout = 10 * time.Second

	// StaticTTL is the lifetime given to records seeded from hosts files.
	StaticTTL = 86400 * time.Second
)
