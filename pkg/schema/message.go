package schema

import "sort"

// Message is a single MAVLink message definition, with every field already
// resolved and the derived wire-layout data cached at load time.
type Message struct {
	Name            string
	ID              uint32
	Description     string
	Fields          []Field
	FieldExtensions []Field

	FieldsReordered    []Field
	AllFields          []Field
	AllFieldsReordered []Field

	// BasePayloadSize is the total wire size of the base fields only — the
	// exact v1 payload length.
	BasePayloadSize int
	// ExpectedPayloadSize is the total wire size of all fields including
	// extensions, used to right-pad short/truncated payloads before
	// decoding (v2 trailing-zero recovery, and any v1 frame shorter than
	// the full layout).
	ExpectedPayloadSize int
	CRCExtra            byte
}

// IsV1Compatible reports whether the message id fits in a v1 frame's 8-bit
// msgid field.
func (m *Message) IsV1Compatible() bool {
	return m.ID <= 255
}

// FieldByName looks up one of m's fields (base or extension) by name.
func (m *Message) FieldByName(name string) (*Field, bool) {
	for i := range m.AllFields {
		if m.AllFields[i].Name == name {
			return &m.AllFields[i], true
		}
	}
	return nil, false
}

// finalize computes every derived field once, after all of a message's
// fields have been parsed and enum bindings resolved. It must run exactly
// once per message, at load time.
func (m *Message) finalize() {
	m.FieldsReordered = reorderBySize(m.Fields)
	m.AllFields = concatFields(m.Fields, m.FieldExtensions)
	m.AllFieldsReordered = concatFields(m.FieldsReordered, m.FieldExtensions)

	base := 0
	for _, f := range m.Fields {
		base += f.Size
	}
	m.BasePayloadSize = base

	all := base
	for _, f := range m.FieldExtensions {
		all += f.Size
	}
	m.ExpectedPayloadSize = all

	m.CRCExtra = computeCRCExtra(m)
}

// reorderBySize returns fields sorted by descending primitive element size,
// stable for equal sizes (declaration order is preserved among ties).
func reorderBySize(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ElemSize > out[j].ElemSize
	})
	return out
}

func concatFields(base, extra []Field) []Field {
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

// computeCRCExtra implements the crc-extra byte derivation from §4.3: a
// CRC-16/CCITT run over the message name, a space, then for every base
// field (reordered, extensions excluded) its canonical type name, a space,
// its own name, a space, and — for vector fields — a trailing byte holding
// the element count.
func computeCRCExtra(m *Message) byte {
	crc := crc16Init()
	crc = crc16UpdateString(crc, m.Name)
	crc = crc16Update(crc, ' ')

	for _, f := range m.FieldsReordered {
		crc = crc16UpdateString(crc, canonicalTypeName(f.Type))
		crc = crc16Update(crc, ' ')
		crc = crc16UpdateString(crc, f.Name)
		crc = crc16Update(crc, ' ')
		if f.Count > 1 {
			crc = crc16Update(crc, byte(f.Count))
		}
	}

	return byte(crc&0xFF) ^ byte((crc>>8)&0xFF)
}
