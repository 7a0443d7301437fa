// File: core/shmem/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message is the 24-byte wire record carried by both rings of a region.
// Fields are little-endian and laid out to match rbmsg_hd exactly.

package shmem

import "encoding/binary"

// MessageSize is the fixed, wire-exact size of a Message record in bytes.
const MessageSize = 24

// Message is one ring record. SrcNode nonzero means the sender field is
// valid; PayloadOff addresses an arena offset for add/free/accept (req
// and conn carry their argument in PayloadLen instead), and is the
// ack-correlation field (echoed send_sync PayloadOff) for ack.
type Message struct {
	SrcNode    uint32
	MsgType    uint32
	IsSync     uint32
	PayloadOff uint32
	PayloadLen int64
}

// Encode writes m into buf[:MessageSize] in little-endian order.
func (m Message) Encode(buf []byte) {
	_ = buf[MessageSize-1] // bounds check hint
	binary.LittleEndian.PutUint32(buf[0:4], m.SrcNode)
	binary.LittleEndian.PutUint32(buf[4:8], m.MsgType)
	binary.LittleEndian.PutUint32(buf[8:12], m.IsSync)
	binary.LittleEndian.PutUint32(buf[12:16], m.PayloadOff)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(m.PayloadLen))
}

// DecodeMessage reads a Message out of buf[:MessageSize].
func DecodeMessage(buf []byte) Message {
	_ = buf[MessageSize-1]
	return Message{
		SrcNode:    binary.LittleEndian.Uint32(buf[0:4]),
		MsgType:    binary.LittleEndian.Uint32(buf[4:8]),
		IsSync:     binary.LittleEndian.Uint32(buf[8:12]),
		PayloadOff: binary.LittleEndian.Uint32(buf[12:16]),
		PayloadLen: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}
}
