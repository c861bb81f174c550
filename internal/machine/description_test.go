package machine

import (
	"path/filepath"
	"strings"
	"testing"

	"etheros/kernel/boot"
	"etheros/kernel/mm/pmm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDescription(t *testing.T) {
	desc, err := LoadDescription(filepath.Join("testdata", "machine.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", desc.SchemaVersion)
	assert.Equal(t, Hex(0x400000), desc.RAMSize)
	assert.Equal(t, Hex(0xffff800000000000), desc.PhysicalMemoryOffset)
	require.Len(t, desc.Mappings, 2)
	assert.Equal(t, Mapping{Page: 0xdeadbeaf000, Frame: 0xb8000, Writable: true}, desc.Mappings[0])
	assert.Equal(t, []Hex{0xdeadbeaf123, 0xb8000, 0xffff8000000b8000, 0x201008}, desc.Probes)

	kind, err := desc.AllocatorKind()
	require.NoError(t, err)
	assert.Equal(t, pmm.KindFreeList, kind)

	regions := desc.MemoryRegions()
	require.Len(t, regions, 5)
	assert.Equal(t, boot.MemoryRegion{Start: 0x0, End: 0x1000, Type: boot.RegionFrameZero}, regions[0])
	assert.Equal(t, boot.MemoryRegion{Start: 0x200000, End: 0x400000, Type: boot.RegionUsable}, regions[4])

	_, err = LoadDescription(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}

func TestParseDescriptionDefaults(t *testing.T) {
	desc, err := ParseDescription([]byte(`
schema_version: 1.4.2
ram_size: 65536
physical_memory_offset: 0x10000000000
regions:
  - {start: 0x1000, length: 0x8000, type: usable}
`))
	require.NoError(t, err)
	assert.Equal(t, Hex(0x10000), desc.RAMSize)

	kind, err := desc.AllocatorKind()
	require.NoError(t, err)
	assert.Equal(t, pmm.KindBump, kind)
}

func TestParseDescriptionErrors(t *testing.T) {
	const valid = `
schema_version: 1.0.0
ram_size: 0x100000
physical_memory_offset: 0x10000000000
regions:
  - {start: 0x1000, length: 0x8000, type: usable}
  - {start: 0x9000, length: 0x1000, type: reserved}
`

	specs := []struct {
		name   string
		doc    string
		expErr string
	}{
		{"unknown field", valid + "colour: blue\n", "field colour not found"},
		{"bad integer", strings.Replace(valid, "0x100000", "0xzz", 1), "invalid syntax"},
		{"schema too new", strings.Replace(valid, "1.0.0", "2.0.0", 1), "does not satisfy"},
		{"schema not semver", strings.Replace(valid, "1.0.0", "latest", 1), "schema_version"},
		{"ram size", strings.Replace(valid, "0x100000", "0x100010", 1), "ram_size"},
		{"non-canonical offset", strings.Replace(valid, "0x10000000000", "0x0000800000000000", 1), "physical_memory_offset"},
		{"unaligned offset", strings.Replace(valid, "0x10000000000", "0x10000000010", 1), "physical_memory_offset"},
		{"allocator", valid + "allocator: buddy\n", "allocator"},
		{"region type", strings.Replace(valid, "type: reserved", "type: cheese", 1), "unknown type"},
		{"region outside ram", strings.Replace(valid, "start: 0x9000", "start: 0x100000", 1), "outside RAM"},
		{"overlap", strings.Replace(valid, "start: 0x9000", "start: 0x8000", 1), "overlaps"},
		{"empty region", strings.Replace(valid, "length: 0x1000", "length: 0", 1), "empty region"},
		{"unaligned page", valid + "mappings: [{page: 0x1010, frame: 0x9000}]\n", "page 0x1010"},
		{"non-canonical page", valid + "mappings: [{page: 0x800000000000, frame: 0x9000}]\n", "page 0x800000000000"},
		{"frame outside ram", valid + "mappings: [{page: 0x1000, frame: 0x200000}]\n", "inside RAM"},
		{"frame owned by allocator", valid + "mappings: [{page: 0x1000, frame: 0x2000}]\n", "belongs to the frame allocator"},
		{"scratch with frame", valid + "mappings: [{page: 0x1000, frame: 0x9000, scratch: true}]\n", "scratch mapping names frame"},
		{"release fixed frame", valid + "allocator: free-list\nmappings: [{page: 0x1000, frame: 0x9000, release: true}]\n", "only scratch mappings can be released"},
		{"release with bump", valid + "mappings: [{page: 0x1000, scratch: true, release: true}]\n", "requires the free-list allocator"},
		{"non-canonical probe", valid + "probes: [0x0000900000000000]\n", "probes[0]"},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			_, err := ParseDescription([]byte(spec.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), spec.expErr)
		})
	}

	_, err := ParseDescription([]byte(valid))
	assert.NoError(t, err)
}
