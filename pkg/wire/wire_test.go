package wire_test

import (
	"os"
	"path/filepath"
	"testing"

	"mavgo/pkg/schema"
	"mavgo/pkg/wire"
)

const testDialect = `<?xml version="1.0"?>
<mavlink>
  <messages>
    <message id="0" name="HEARTBEAT">
      <field type="uint32_t" name="custom_mode"/>
      <field type="uint8_t" name="type"/>
      <field type="uint8_t" name="autopilot"/>
      <field type="uint8_t" name="base_mode"/>
      <field type="uint8_t" name="system_status"/>
      <field type="uint8_t_mavlink_version" name="mavlink_version"/>
    </message>
    <message id="22" name="PARAM_VALUE">
      <field type="float" name="param_value"/>
      <field type="uint16_t" name="param_count"/>
      <field type="uint16_t" name="param_index"/>
      <field type="char[16]" name="param_id"/>
      <field type="uint8_t" name="param_type"/>
    </message>
  </messages>
</mavlink>`

func loadTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.xml")
	if err := os.WriteFile(path, []byte(testDialect), 0o644); err != nil {
		t.Fatalf("write dialect: %v", err)
	}
	reg, err := schema.LoadFiles([]string{path})
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	return reg
}

func TestEncodeV1HeartbeatRoundTrip(t *testing.T) {
	reg := loadTestRegistry(t)
	msg, _ := reg.MessageByName("HEARTBEAT")

	values := map[string]any{
		"type":            int64(2),
		"autopilot":       int64(3),
		"base_mode":       int64(0x81),
		"custom_mode":     int64(0),
		"system_status":   int64(3),
		"mavlink_version": int64(3),
	}

	frame, err := wire.EncodeV1(msg, 7, 1, 1, values)
	if err != nil {
		t.Fatalf("EncodeV1: %v", err)
	}

	if frame[0] != wire.MarkerV1 {
		t.Fatalf("got marker %#x, want %#x", frame[0], wire.MarkerV1)
	}
	wantPrefix := []byte{wire.MarkerV1, 0x09, 0x07, 0x01, 0x01, 0x00}
	for i, b := range wantPrefix {
		if frame[i] != b {
			t.Fatalf("byte %d: got %#x, want %#x", i, frame[i], b)
		}
	}
	if len(frame) != 1+5+9+2 {
		t.Fatalf("got frame length %d, want %d", len(frame), 1+5+9+2)
	}

	payload := frame[6 : 6+9]
	decoded, err := wire.DecodePayload(msg, payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	for k, v := range values {
		got := asInt64(t, decoded[k])
		want := asInt64(t, v)
		if got != want {
			t.Fatalf("field %q: got %v, want %v", k, got, want)
		}
	}
}

func asInt64(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	default:
		t.Fatalf("unexpected type %T in asInt64", v)
		return 0
	}
}

// TestEncodeV2ParamValueTruncatesToLeadingField exercises the v2 trailing-
// zero truncation rule against the real PARAM_VALUE field order: after
// descending-size reordering, param_value (float, 4 bytes) sorts first and
// every other field here is zero, so every byte behind it trims away and the
// wire payload shrinks to just that leading field.
func TestEncodeV2ParamValueTruncatesToLeadingField(t *testing.T) {
	reg := loadTestRegistry(t)
	msg, _ := reg.MessageByName("PARAM_VALUE")

	values := map[string]any{
		"param_value": float64(1.5),
		"param_count": int64(0),
		"param_index": int64(0),
		"param_id":    "",
		"param_type":  int64(0),
	}

	frame, err := wire.EncodeV2(msg, 0, 1, 1, 0, 0, values)
	if err != nil {
		t.Fatalf("EncodeV2: %v", err)
	}

	header := frame[1 : 1+wire.HeaderSizeV2]
	payloadSize := int(header[0])
	if payloadSize != 4 {
		t.Fatalf("got wire payload size %d, want 4", payloadSize)
	}

	payload := frame[1+wire.HeaderSizeV2 : 1+wire.HeaderSizeV2+payloadSize]
	decoded, err := wire.DecodePayload(msg, payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded["param_value"] != float32(1.5) {
		t.Fatalf("got param_value %v, want 1.5", decoded["param_value"])
	}
	if decoded["param_type"] != uint8(0) {
		t.Fatalf("got param_type %v, want 0 (recovered from zero-padding)", decoded["param_type"])
	}
	if decoded["param_id"] != "" {
		t.Fatalf("got param_id %q, want empty (recovered from zero-padding)", decoded["param_id"])
	}
}

// TestEncodeV2ParamValueNonZeroLastFieldKeepsFullPayload exercises the
// opposite edge: when the field that sorts last (param_type) is itself
// non-zero, nothing can be trimmed and the wire carries the full payload.
func TestEncodeV2ParamValueNonZeroLastFieldKeepsFullPayload(t *testing.T) {
	reg := loadTestRegistry(t)
	msg, _ := reg.MessageByName("PARAM_VALUE")

	values := map[string]any{
		"param_value": float64(0),
		"param_count": int64(0),
		"param_index": int64(0),
		"param_id":    "",
		"param_type":  int64(9),
	}

	frame, err := wire.EncodeV2(msg, 0, 1, 1, 0, 0, values)
	if err != nil {
		t.Fatalf("EncodeV2: %v", err)
	}

	header := frame[1 : 1+wire.HeaderSizeV2]
	payloadSize := int(header[0])
	if payloadSize != msg.ExpectedPayloadSize {
		t.Fatalf("got wire payload size %d, want %d (param_type, the last reordered field, is non-zero)", payloadSize, msg.ExpectedPayloadSize)
	}

	payload := frame[1+wire.HeaderSizeV2 : 1+wire.HeaderSizeV2+payloadSize]
	decoded, err := wire.DecodePayload(msg, payload)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded["param_type"] != uint8(9) {
		t.Fatalf("got param_type %v, want 9", decoded["param_type"])
	}
	if decoded["param_count"] != uint16(0) {
		t.Fatalf("got param_count %v, want 0", decoded["param_count"])
	}
	if decoded["param_id"] != "" {
		t.Fatalf("got param_id %q, want empty", decoded["param_id"])
	}
}

func TestEncodePayloadValuesRejectsUnknownField(t *testing.T) {
	reg := loadTestRegistry(t)
	msg, _ := reg.MessageByName("HEARTBEAT")

	values := map[string]any{
		"type":            int64(2),
		"autopilot":       int64(3),
		"base_mode":       int64(0),
		"custom_mode":     int64(0),
		"system_status":   int64(0),
		"mavlink_version": int64(3),
		"bogus_field":     int64(1),
	}

	if _, err := wire.EncodePayloadValues(msg, values); err == nil {
		t.Fatalf("expected an error for an unknown field name")
	}
}

func TestEncodePayloadValuesRejectsMissingField(t *testing.T) {
	reg := loadTestRegistry(t)
	msg, _ := reg.MessageByName("HEARTBEAT")

	values := map[string]any{
		"type": int64(2),
	}

	if _, err := wire.EncodePayloadValues(msg, values); err == nil {
		t.Fatalf("expected an error for missing required fields")
	}
}

func TestFrameCRCDeterministic(t *testing.T) {
	reg := loadTestRegistry(t)
	msg, _ := reg.MessageByName("HEARTBEAT")

	header := []byte{0x09, 0x00, 0x01, 0x01, 0x00}
	payload := make([]byte, 9)

	a := wire.FrameCRC(header, payload, msg.CRCExtra)
	b := wire.FrameCRC(header, payload, msg.CRCExtra)
	if a != b {
		t.Fatalf("FrameCRC not deterministic: %#x vs %#x", a, b)
	}
}
