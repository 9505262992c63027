package wire

// Markers identify the two frame versions on the wire.
const (
	MarkerV1 byte = 0xFE
	MarkerV2 byte = 0xFD
)

// HeaderSizeV1 is the number of header bytes following the marker in a v1
// frame (payload_size, seq, sysid, compid, msgid).
const HeaderSizeV1 = 5

// HeaderSizeV2 is the number of header bytes following the marker in a v2
// frame (payload_size, incompat_flags, compat_flags, seq, sysid, compid,
// msgid as 3 little-endian bytes).
const HeaderSizeV2 = 9

// SignatureSize is the length of the optional v2 signature trailer.
const SignatureSize = 13

// IncompatFlagSigned marks a v2 frame as carrying a signature trailer.
const IncompatFlagSigned byte = 0x01

// HeaderV1 is the decoded header of a v1 frame.
type HeaderV1 struct {
	PayloadSize byte
	Seq         byte
	SysID       byte
	CompID      byte
	MsgID       byte
}

func (h HeaderV1) encode() []byte {
	return []byte{h.PayloadSize, h.Seq, h.SysID, h.CompID, h.MsgID}
}

// DecodeHeaderV1 decodes the 5 header bytes following a v1 marker.
func DecodeHeaderV1(b []byte) HeaderV1 {
	return HeaderV1{
		PayloadSize: b[0],
		Seq:         b[1],
		SysID:       b[2],
		CompID:      b[3],
		MsgID:       b[4],
	}
}

// HeaderV2 is the decoded header of a v2 frame. MsgID is a 24-bit id stored
// little-endian on the wire.
type HeaderV2 struct {
	PayloadSize   byte
	IncompatFlags byte
	CompatFlags   byte
	Seq           byte
	SysID         byte
	CompID        byte
	MsgID         uint32
}

func (h HeaderV2) encode() []byte {
	return []byte{
		h.PayloadSize,
		h.IncompatFlags,
		h.CompatFlags,
		h.Seq,
		h.SysID,
		h.CompID,
		byte(h.MsgID),
		byte(h.MsgID >> 8),
		byte(h.MsgID >> 16),
	}
}

// DecodeHeaderV2 decodes the 9 header bytes following a v2 marker.
func DecodeHeaderV2(b []byte) HeaderV2 {
	return HeaderV2{
		PayloadSize:   b[0],
		IncompatFlags: b[1],
		CompatFlags:   b[2],
		Seq:           b[3],
		SysID:         b[4],
		CompID:        b[5],
		MsgID:         uint32(b[6]) | uint32(b[7])<<8 | uint32(b[8])<<16,
	}
}
