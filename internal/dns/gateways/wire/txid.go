package wire

import (
	"encoding/binary"

	"github.com/haukened/rr-relay/internal/dns/domain"
)

// TransactionID reads the header ID of a raw message.
func TransactionID(data []byte) (uint16, error) {
	if len(data) < domain.HeaderSize {
		return 0, ErrShortMessage
	}
	return binary.BigEndian.Uint16(data[0:2]), nil
}

// SetTransactionID rewrites the header ID of a raw message in place.
func SetTransactionID(data []byte, id uint16) error {
	if len(data) < domain.HeaderSize {
		return ErrShortMessage
	}
	binary.BigEndian.PutUint16(data[0:2], id)
	return nil
}
