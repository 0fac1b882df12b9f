package calendar

import (
	"bytes"
	"encoding/binary"
	"io"
)

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r io.ByteReader) (uint64, error) { return binary.ReadUvarint(r) }
func readVarint(r io.ByteReader) (int64, error)   { return binary.ReadVarint(r) }
func readFull(r io.Reader, b []byte) (int, error) { return io.ReadFull(r, b) }
