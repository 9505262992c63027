package wire

import (
	"fmt"

	"mavgo/pkg/schema"
)

// FrameCRC runs the CRC-16/CCITT accumulator used by every MAVLink frame:
// header bytes (marker excluded) followed by the payload bytes followed by
// the message's single crc-extra byte.
func FrameCRC(headerNoMarker, payload []byte, crcExtra byte) uint16 {
	crc := schema.CRC16Init()
	crc = schema.CRC16CCITT(crc, headerNoMarker)
	crc = schema.CRC16CCITT(crc, payload)
	crc = schema.CRC16Byte(crc, crcExtra)
	return crc
}

// EncodePayloadValues serialises every field of msg (base fields and
// extensions) into msg.AllFieldsReordered order, from a name->value map
// that must supply exactly msg.AllFields — no more, no fewer.
func EncodePayloadValues(msg *schema.Message, values map[string]any) ([]byte, error) {
	known := make(map[string]struct{}, len(msg.AllFields))
	for i := range msg.AllFields {
		known[msg.AllFields[i].Name] = struct{}{}
	}
	for key := range values {
		if _, ok := known[key]; !ok {
			return nil, &EncodeError{Message: msg.Name, Field: key, Msg: "unknown field"}
		}
	}
	for i := range msg.AllFields {
		name := msg.AllFields[i].Name
		if _, ok := values[name]; !ok {
			return nil, &EncodeError{Message: msg.Name, Field: name, Msg: "missing field"}
		}
	}

	buf := make([]byte, msg.ExpectedPayloadSize)
	offset := 0
	for i := range msg.AllFieldsReordered {
		f := &msg.AllFieldsReordered[i]
		raw, err := resolveEncodeValue(msg, f, values[f.Name])
		if err != nil {
			return nil, err
		}
		if err := putRaw(f, raw, buf[offset:offset+f.Size]); err != nil {
			return nil, err
		}
		offset += f.Size
	}
	return buf, nil
}

// EncodePositionalValues maps positional arguments, given in msg.AllFields
// declaration order (not reordered), into a name->value map suitable for
// EncodePayloadValues. The arity must match exactly.
func EncodePositionalValues(msg *schema.Message, args []any) (map[string]any, error) {
	if len(args) != len(msg.AllFields) {
		return nil, &EncodeError{Message: msg.Name, Msg: fmt.Sprintf("expected %d positional values, got %d", len(msg.AllFields), len(args))}
	}
	values := make(map[string]any, len(args))
	for i, f := range msg.AllFields {
		values[f.Name] = args[i]
	}
	return values, nil
}

// EncodeV1 builds a complete v1 frame (marker through trailer CRC) carrying
// only msg's base fields. values must still supply every field in
// msg.AllFields; any extension values are accepted but not transmitted.
func EncodeV1(msg *schema.Message, seq, sysID, compID byte, values map[string]any) ([]byte, error) {
	full, err := EncodePayloadValues(msg, values)
	if err != nil {
		return nil, err
	}
	payload := full[:msg.BasePayloadSize]

	header := HeaderV1{
		PayloadSize: byte(len(payload)),
		Seq:         seq,
		SysID:       sysID,
		CompID:      compID,
		MsgID:       byte(msg.ID),
	}
	headerBytes := header.encode()
	crc := FrameCRC(headerBytes, payload, msg.CRCExtra)

	frame := make([]byte, 0, 1+len(headerBytes)+len(payload)+2)
	frame = append(frame, MarkerV1)
	frame = append(frame, headerBytes...)
	frame = append(frame, payload...)
	frame = append(frame, byte(crc), byte(crc>>8))
	return frame, nil
}

// EncodeV2 builds a complete v2 frame carrying every field of msg
// (base+extensions), with trailing all-zero bytes trimmed off (never below
// 1 byte). Producing a signed frame is out of scope: passing
// IncompatFlagSigned returns an error.
func EncodeV2(msg *schema.Message, seq, sysID, compID, incompatFlags, compatFlags byte, values map[string]any) ([]byte, error) {
	if incompatFlags&IncompatFlagSigned != 0 {
		return nil, &EncodeError{Message: msg.Name, Msg: "signing unsupported"}
	}

	full, err := EncodePayloadValues(msg, values)
	if err != nil {
		return nil, err
	}
	payload := trimTrailingZeros(full)

	header := HeaderV2{
		PayloadSize:   byte(len(payload)),
		IncompatFlags: incompatFlags,
		CompatFlags:   compatFlags,
		Seq:           seq,
		SysID:         sysID,
		CompID:        compID,
		MsgID:         msg.ID,
	}
	headerBytes := header.encode()
	crc := FrameCRC(headerBytes, payload, msg.CRCExtra)

	frame := make([]byte, 0, 1+len(headerBytes)+len(payload)+2)
	frame = append(frame, MarkerV2)
	frame = append(frame, headerBytes...)
	frame = append(frame, payload...)
	frame = append(frame, byte(crc), byte(crc>>8))
	return frame, nil
}

// trimTrailingZeros drops trailing zero bytes but never shortens below 1
// byte, per the v2 payload-truncation rule.
func trimTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 1 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}

// DecodePayload decodes a raw wire payload (already stripped of header,
// marker, and CRC) into a name->value map. A payload shorter than
// msg.ExpectedPayloadSize is right-padded with zeros first, recovering a
// v2-truncated frame; a payload longer than expected is truncated to it.
func DecodePayload(msg *schema.Message, payload []byte) (map[string]any, error) {
	padded := payload
	switch {
	case len(payload) < msg.ExpectedPayloadSize:
		padded = make([]byte, msg.ExpectedPayloadSize)
		copy(padded, payload)
	case len(payload) > msg.ExpectedPayloadSize:
		padded = payload[:msg.ExpectedPayloadSize]
	}

	out := make(map[string]any, len(msg.AllFieldsReordered))
	offset := 0
	for i := range msg.AllFieldsReordered {
		f := &msg.AllFieldsReordered[i]
		raw := getRaw(f, padded[offset:offset+f.Size])
		offset += f.Size

		value, err := resolveDecodeValue(msg, f, raw)
		if err != nil {
			return nil, err
		}
		out[f.Name] = value
	}
	return out, nil
}

func resolveEncodeValue(msg *schema.Message, f *schema.Field, value any) (any, error) {
	enum, ok := f.Enum()
	if !ok {
		return value, nil
	}

	if f.Display == "bitmask" {
		if names, isNames := value.([]string); isNames {
			var acc uint64
			for _, name := range names {
				entry, found := enum.EntryByName(name)
				if !found {
					return nil, &EncodeError{Message: msg.Name, Field: f.Name, Msg: fmt.Sprintf("unknown enum entry %q", name)}
				}
				acc |= uint64(entry.Value)
			}
			return acc, nil
		}
		return value, nil
	}

	if f.IsVector() || f.IsString() {
		return value, nil
	}

	name, isName := value.(string)
	if !isName {
		return value, nil
	}
	entry, found := enum.EntryByName(name)
	if !found {
		return nil, &EncodeError{Message: msg.Name, Field: f.Name, Msg: fmt.Sprintf("unknown enum entry %q", name)}
	}
	return entry.Value, nil
}

func resolveDecodeValue(msg *schema.Message, f *schema.Field, raw any) (any, error) {
	enum, ok := f.Enum()
	if !ok {
		return raw, nil
	}

	if f.Display == "bitmask" {
		iv, err := toInt64(raw)
		if err != nil {
			return nil, &DecodeError{Message: msg.Name, Field: f.Name, Msg: "bitmask field is not scalar"}
		}
		return enum.DecodeBitmask(uint64(iv)), nil
	}

	if f.IsVector() || f.IsString() {
		return raw, nil
	}

	iv, err := toInt64(raw)
	if err != nil {
		return nil, &DecodeError{Message: msg.Name, Field: f.Name, Msg: "enum field is not scalar"}
	}
	entry, found := enum.EntryByValue(iv)
	if !found {
		return nil, &DecodeError{Message: msg.Name, Field: f.Name, Msg: fmt.Sprintf("no enum entry for value %d", iv)}
	}
	return entry.Name, nil
}
