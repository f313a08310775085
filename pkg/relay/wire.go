package relay

import (
	"encoding/binary"
	"io"
)

// maxPacketSize mirrors the transport layer's wire bound; anything larger
// indicates a corrupt length prefix.
const maxPacketSize = 1 << 16

// writePacket writes one length-prefixed packet. Callers serialize access
// to the writer.
func writePacket(w io.Writer, p []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(p)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

// readPacket reads one length-prefixed packet.
func readPacket(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 || size > maxPacketSize {
		return nil, ErrMalformedPacket
	}

	p := make([]byte, size)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, err
	}
	return p, nil
}
