package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForUUIDSpellings(t *testing.T) {
	spellings := []string{
		"6F000007-B5A3-F393-E0A9-E50E24DCCA9E",
		"6f000007-b5a3-f393-e0a9-e50e24dcca9e",
		"6f000007b5a3f393e0a9e50e24dcca9e",
		"  6F000007-B5A3-F393-E0A9-E50E24DCCA9E ",
	}
	for _, s := range spellings {
		k, ok := KindForUUID(s)
		require.True(t, ok, s)
		assert.Equal(t, KindLeftScore, k, s)
	}
}

func TestKindForUUIDDeviceInfo(t *testing.T) {
	for _, s := range []string{"2a24", "2A24", "00002a24-0000-1000-8000-00805f9b34fb"} {
		k, ok := KindForUUID(s)
		require.True(t, ok, s)
		assert.Equal(t, KindModelNumber, k)
	}
}

func TestKindForUUIDUnknown(t *testing.T) {
	_, ok := KindForUUID("6F0000FF-B5A3-F393-E0A9-E50E24DCCA9E")
	assert.False(t, ok)

	_, ok = KindForUUID("not-a-uuid")
	assert.False(t, ok)
}

func TestKindTableIsBijective(t *testing.T) {
	seen := make(map[string]Kind)
	for k, info := range kindTable {
		require.NotEmpty(t, info.uuid, k.String())
		if prev, dup := seen[info.uuid]; dup {
			t.Fatalf("%s and %s share uuid %s", prev, k, info.uuid)
		}
		seen[info.uuid] = k

		back, ok := KindForUUID(k.UUID())
		require.True(t, ok)
		assert.Equal(t, k, back)

		byName, ok := KindForName(k.String())
		require.True(t, ok)
		assert.Equal(t, k, byName)
	}
}

func TestNotifyKinds(t *testing.T) {
	kinds := NotifyKinds()
	assert.Len(t, kinds, 9)
	for _, k := range kinds {
		assert.False(t, k.IsDeviceInfo(), k.String())
		assert.True(t, kindTable[k].notify, k.String())
	}

	uuids := NotifyUUIDs()
	require.Len(t, uuids, len(kinds))
	assert.Equal(t, KindLeftCards.UUID(), uuids[0])

	kinds[0] = KindUnknown
	assert.Equal(t, KindLeftCards, NotifyKinds()[0], "callers get a copy")
}

func TestDeviceInfoKinds(t *testing.T) {
	for _, k := range DeviceInfoKinds() {
		assert.True(t, k.IsDeviceInfo())
	}
}

func TestKindStringUnknown(t *testing.T) {
	assert.Equal(t, "Kind(0)", KindUnknown.String())
	assert.Equal(t, "", KindUnknown.UUID())
}
