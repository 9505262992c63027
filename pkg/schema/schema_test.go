package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"mavgo/pkg/schema"
)

const commonDialect = `<?xml version="1.0"?>
<mavlink>
  <enums>
    <enum name="MAV_SYS_STATUS_SENSOR">
      <description>Bitmask of onboard sensors.</description>
      <entry name="MAV_SYS_STATUS_SENSOR_3D_GYRO" value="1"/>
      <entry name="MAV_SYS_STATUS_SENSOR_3D_ACCEL" value="2"/>
      <entry name="MAV_SYS_STATUS_SENSOR_BATTERY" value="32"/>
    </enum>
    <enum name="MAV_TYPE">
      <entry name="MAV_TYPE_GENERIC" value="0"/>
      <entry name="MAV_TYPE_QUADROTOR" value="2"/>
    </enum>
  </enums>
  <messages>
    <message id="0" name="HEARTBEAT">
      <description>Heartbeat.</description>
      <field type="uint32_t" name="custom_mode">A bitfield.</field>
      <field type="uint8_t" name="type" enum="MAV_TYPE">Vehicle type.</field>
      <field type="uint8_t" name="autopilot">Autopilot type.</field>
      <field type="uint8_t" name="base_mode">System mode bitmap.</field>
      <field type="uint8_t" name="system_status">System status.</field>
      <field type="uint8_t_mavlink_version" name="mavlink_version">Protocol version.</field>
    </message>
    <message id="1" name="SYS_STATUS">
      <field type="uint32_t" name="onboard_control_sensors_present" enum="MAV_SYS_STATUS_SENSOR" display="bitmask"/>
      <field type="uint32_t" name="onboard_control_sensors_enabled" enum="MAV_SYS_STATUS_SENSOR" display="bitmask"/>
      <field type="uint32_t" name="onboard_control_sensors_health" enum="MAV_SYS_STATUS_SENSOR" display="bitmask"/>
      <field type="int16_t" name="load"/>
      <field type="uint16_t" name="voltage_battery"/>
      <extensions/>
      <field type="uint8_t" name="battery_remaining"/>
    </message>
  </messages>
</mavlink>`

func loadTestDialect(t *testing.T) *schema.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "common.xml")
	if err := os.WriteFile(path, []byte(commonDialect), 0o644); err != nil {
		t.Fatalf("write dialect: %v", err)
	}
	reg, err := schema.LoadFiles([]string{path})
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	return reg
}

func TestHeartbeatCRCExtraIs50(t *testing.T) {
	reg := loadTestDialect(t)
	msg, ok := reg.MessageByName("HEARTBEAT")
	if !ok {
		t.Fatalf("HEARTBEAT not found")
	}
	if msg.CRCExtra != 50 {
		t.Fatalf("got crc_extra %d, want 50", msg.CRCExtra)
	}
}

func TestHeartbeatFieldReorderingDescendingSize(t *testing.T) {
	reg := loadTestDialect(t)
	msg, _ := reg.MessageByName("HEARTBEAT")

	want := []string{"custom_mode", "type", "autopilot", "base_mode", "system_status", "mavlink_version"}
	if len(msg.FieldsReordered) != len(want) {
		t.Fatalf("got %d fields, want %d", len(msg.FieldsReordered), len(want))
	}
	for i, name := range want {
		if msg.FieldsReordered[i].Name != name {
			t.Fatalf("position %d: got %q, want %q", i, msg.FieldsReordered[i].Name, name)
		}
	}
}

func TestSysStatusExtensionsNotReordered(t *testing.T) {
	reg := loadTestDialect(t)
	msg, _ := reg.MessageByName("SYS_STATUS")

	last := msg.AllFieldsReordered[len(msg.AllFieldsReordered)-1]
	if last.Name != "battery_remaining" {
		t.Fatalf("got last field %q, want battery_remaining (extensions appended untouched)", last.Name)
	}
}

func TestEnumDecodeBitmask(t *testing.T) {
	reg := loadTestDialect(t)
	enum, ok := reg.EnumByName("MAV_SYS_STATUS_SENSOR")
	if !ok {
		t.Fatalf("enum not found")
	}

	got := enum.DecodeBitmask(0x00000021)
	want := map[string]bool{"MAV_SYS_STATUS_SENSOR_3D_GYRO": true, "MAV_SYS_STATUS_SENSOR_BATTERY": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want exactly %v", got, want)
	}
	for _, name := range got {
		if !want[name] {
			t.Fatalf("unexpected entry %q in bitmask decode", name)
		}
	}
}

func TestDuplicateMessageIDFails(t *testing.T) {
	dir := t.TempDir()
	dup := `<?xml version="1.0"?>
<mavlink><messages>
  <message id="0" name="A"><field type="uint8_t" name="x"/></message>
  <message id="0" name="B"><field type="uint8_t" name="x"/></message>
</messages></mavlink>`
	path := filepath.Join(dir, "dup.xml")
	if err := os.WriteFile(path, []byte(dup), 0o644); err != nil {
		t.Fatalf("write dialect: %v", err)
	}
	if _, err := schema.LoadFiles([]string{path}); err == nil {
		t.Fatalf("expected an error for duplicate message id")
	}
}

func TestMissingRequiredAttributeFails(t *testing.T) {
	dir := t.TempDir()
	bad := `<?xml version="1.0"?>
<mavlink><messages>
  <message name="NO_ID"><field type="uint8_t" name="x"/></message>
</messages></mavlink>`
	path := filepath.Join(dir, "bad.xml")
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("write dialect: %v", err)
	}
	if _, err := schema.LoadFiles([]string{path}); err == nil {
		t.Fatalf("expected an error for missing id attribute")
	}
}
