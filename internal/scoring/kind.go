package scoring

import (
	"fmt"

	"github.com/srg/fa15bridge/internal/device"
)

// Kind identifies one characteristic of the scoring apparatus.
// The set is closed: every Kind is bound to its UUID and decoder in kindTable.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindLeftCards
	KindRightCards
	KindHalt
	KindTime
	KindPeriod
	KindWeapon
	KindLeftScore
	KindRightScore
	KindLamp
	KindModelNumber
	KindFirmwareRevision
	KindSoftwareRevision
)

// FA-15 vendor UUIDs share this layout; only the second byte differs per characteristic.
const vendorUUIDFormat = "6F0000%02X-B5A3-F393-E0A9-E50E24DCCA9E"

type kindInfo struct {
	name   string
	uuid   string // normalized
	notify bool   // carries scoring state and is subscribed to
}

var kindTable = map[Kind]kindInfo{
	KindLeftCards:        {name: "leftCards", uuid: vendorUUID(0x0A), notify: true},
	KindRightCards:       {name: "rightCards", uuid: vendorUUID(0x0B), notify: true},
	KindHalt:             {name: "halt", uuid: vendorUUID(0x0C), notify: true},
	KindTime:             {name: "time", uuid: vendorUUID(0x04), notify: true},
	KindPeriod:           {name: "period", uuid: vendorUUID(0x05), notify: true},
	KindWeapon:           {name: "weapon", uuid: vendorUUID(0x06), notify: true},
	KindLeftScore:        {name: "leftScore", uuid: vendorUUID(0x07), notify: true},
	KindRightScore:       {name: "rightScore", uuid: vendorUUID(0x08), notify: true},
	KindLamp:             {name: "lamp", uuid: vendorUUID(0x09), notify: true},
	KindModelNumber:      {name: "modelNumber", uuid: "2a24"},
	KindFirmwareRevision: {name: "firmwareRevision", uuid: "2a26"},
	KindSoftwareRevision: {name: "softwareRevision", uuid: "2a28"},
}

// kindOrder is the order characteristics are read and subscribed in.
var kindOrder = []Kind{
	KindLeftCards, KindRightCards, KindHalt, KindTime, KindPeriod,
	KindWeapon, KindLeftScore, KindRightScore, KindLamp,
}

var (
	uuidToKind = make(map[string]Kind, len(kindTable))
	nameToKind = make(map[string]Kind, len(kindTable))
)

func init() {
	for k, info := range kindTable {
		uuidToKind[info.uuid] = k
		nameToKind[info.name] = k
	}
}

func vendorUUID(id byte) string {
	return device.NormalizeUUID(fmt.Sprintf(vendorUUIDFormat, id))
}

// String returns the characteristic name as used by the device documentation.
func (k Kind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// UUID returns the normalized characteristic UUID, or "" for KindUnknown.
func (k Kind) UUID() string {
	return kindTable[k].uuid
}

// IsDeviceInfo reports whether k is one of the read-only device information strings.
func (k Kind) IsDeviceInfo() bool {
	return k == KindModelNumber || k == KindFirmwareRevision || k == KindSoftwareRevision
}

// KindForUUID resolves a characteristic UUID in any accepted spelling.
func KindForUUID(uuid string) (Kind, bool) {
	k, ok := uuidToKind[device.NormalizeUUID(uuid)]
	return k, ok
}

// KindForName resolves a characteristic by its name (e.g. "leftScore").
func KindForName(name string) (Kind, bool) {
	k, ok := nameToKind[name]
	return k, ok
}

// NotifyKinds returns the scoring characteristics in subscription order.
func NotifyKinds() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// NotifyUUIDs returns the UUIDs of NotifyKinds.
func NotifyUUIDs() []string {
	out := make([]string, len(kindOrder))
	for i, k := range kindOrder {
		out[i] = k.UUID()
	}
	return out
}

// DeviceInfoKinds returns the device information characteristics.
func DeviceInfoKinds() []Kind {
	return []Kind{KindModelNumber, KindFirmwareRevision, KindSoftwareRevision}
}
