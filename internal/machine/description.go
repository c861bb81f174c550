package machine

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"etheros/kernel/boot"
	"etheros/kernel/mm"
	"etheros/kernel/mm/pmm"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SupportedSchema is the range of description schema versions understood by
// this package.
const SupportedSchema = ">= 1.0.0, < 2.0.0"

var supportedSchema = mustConstraint(SupportedSchema)

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// Hex is an integer that can be written in a description either in decimal
// or with a 0x, 0o or 0b prefix.
type Hex uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *Hex) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an integer", value.Line)
	}

	v, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*h = Hex(v)
	return nil
}

// Region describes a range of physical memory handed over by the simulated
// boot stage.
type Region struct {
	Start  Hex    `yaml:"start"`
	Length Hex    `yaml:"length"`
	Type   string `yaml:"type"`
}

// Mapping requests that the virtual page containing Page is mapped to the
// frame containing Frame. A scratch mapping leaves Frame unset and is backed
// by a frame drawn from the frame allocator instead. Release unmaps a
// scratch mapping once it has been verified and hands its frame back to the
// allocator, which requires the free-list allocator.
type Mapping struct {
	Page     Hex  `yaml:"page"`
	Frame    Hex  `yaml:"frame"`
	Writable bool `yaml:"writable"`
	User     bool `yaml:"user"`
	Scratch  bool `yaml:"scratch"`
	Release  bool `yaml:"release"`
}

// Description is the YAML document that describes a simulated machine.
type Description struct {
	SchemaVersion        string    `yaml:"schema_version"`
	RAMSize              Hex       `yaml:"ram_size"`
	PhysicalMemoryOffset Hex       `yaml:"physical_memory_offset"`
	Allocator            string    `yaml:"allocator"`
	Regions              []Region  `yaml:"regions"`
	Mappings             []Mapping `yaml:"mappings"`
	Probes               []Hex     `yaml:"probes"`
}

// LoadDescription reads and validates the description stored at path.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	desc, err := ParseDescription(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// ParseDescription decodes and validates a description. Unknown fields are
// rejected.
func ParseDescription(data []byte) (*Description, error) {
	var desc Description

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		return nil, fmt.Errorf("decode machine description: %w", err)
	}

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Validate checks that the description can be used to boot a machine.
func (d *Description) Validate() error {
	var errs []error

	version, err := semver.NewVersion(d.SchemaVersion)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("schema_version %q: %w", d.SchemaVersion, err))
	case !supportedSchema.Check(version):
		errs = append(errs, fmt.Errorf("schema_version %s does not satisfy %s", version, SupportedSchema))
	}

	if d.RAMSize == 0 || uint64(d.RAMSize)%uint64(mm.PageSize) != 0 {
		errs = append(errs, fmt.Errorf("ram_size 0x%x is not a non-zero multiple of the page size", uint64(d.RAMSize)))
	}

	if offset, kerr := mm.NewVirtAddr(uint64(d.PhysicalMemoryOffset)); kerr != nil || !offset.IsPageAligned() {
		errs = append(errs, fmt.Errorf("physical_memory_offset 0x%x is not a canonical page-aligned address", uint64(d.PhysicalMemoryOffset)))
	} else if !mm.IsCanonical(uint64(d.PhysicalMemoryOffset) + uint64(d.RAMSize) - 1) {
		errs = append(errs, fmt.Errorf("physical_memory_offset 0x%x cannot map 0x%x bytes", uint64(d.PhysicalMemoryOffset), uint64(d.RAMSize)))
	}

	kind, kindErr := d.AllocatorKind()
	if kindErr != nil {
		errs = append(errs, kindErr)
	}

	errs = append(errs, d.validateRegions()...)

	for i, m := range d.Mappings {
		if virtAddr, kerr := mm.NewVirtAddr(uint64(m.Page)); kerr != nil || !virtAddr.IsPageAligned() {
			errs = append(errs, fmt.Errorf("mappings[%d]: page 0x%x is not a canonical page-aligned address", i, uint64(m.Page)))
		}
		switch {
		case m.Scratch && m.Frame != 0:
			errs = append(errs, fmt.Errorf("mappings[%d]: scratch mapping names frame 0x%x", i, uint64(m.Frame)))
		case m.Scratch:
		case uint64(m.Frame)%uint64(mm.PageSize) != 0 || uint64(m.Frame) >= uint64(d.RAMSize):
			errs = append(errs, fmt.Errorf("mappings[%d]: frame 0x%x is not a page-aligned address inside RAM", i, uint64(m.Frame)))
		default:
			if r, ok := d.regionAt(uint64(m.Frame)); ok && r.Type == boot.RegionUsable.String() {
				errs = append(errs, fmt.Errorf("mappings[%d]: frame 0x%x belongs to the frame allocator", i, uint64(m.Frame)))
			}
		}
		if m.Release && !m.Scratch {
			errs = append(errs, fmt.Errorf("mappings[%d]: only scratch mappings can be released", i))
		}
		if m.Release && kindErr == nil && kind != pmm.KindFreeList {
			errs = append(errs, fmt.Errorf("mappings[%d]: releasing frames requires the %s allocator", i, pmm.KindFreeList))
		}
	}

	for i, p := range d.Probes {
		if !mm.IsCanonical(uint64(p)) {
			errs = append(errs, fmt.Errorf("probes[%d]: 0x%x is not canonical", i, uint64(p)))
		}
	}

	return errors.Join(errs...)
}

func (d *Description) validateRegions() []error {
	var errs []error

	if len(d.Regions) > boot.MaxRegions {
		errs = append(errs, fmt.Errorf("%d regions exceed the handoff capacity of %d", len(d.Regions), boot.MaxRegions))
	}

	for i, r := range d.Regions {
		if _, ok := boot.ParseRegionType(r.Type); !ok {
			errs = append(errs, fmt.Errorf("regions[%d]: unknown type %q", i, r.Type))
		}
		if r.Length == 0 {
			errs = append(errs, fmt.Errorf("regions[%d]: empty region", i))
		}
		if uint64(r.Start) > uint64(d.RAMSize) || uint64(r.Length) > uint64(d.RAMSize)-uint64(r.Start) {
			errs = append(errs, fmt.Errorf("regions[%d]: [0x%x - 0x%x) is outside RAM", i, uint64(r.Start), uint64(r.Start)+uint64(r.Length)))
		}
	}

	sorted := slices.Clone(d.Regions)
	slices.SortFunc(sorted, func(a, b Region) int {
		return cmp.Compare(a.Start, b.Start)
	})
	for i := 1; i < len(sorted); i++ {
		if prev := sorted[i-1]; uint64(prev.Start)+uint64(prev.Length) > uint64(sorted[i].Start) {
			errs = append(errs, fmt.Errorf("region at 0x%x overlaps region at 0x%x", uint64(sorted[i].Start), uint64(prev.Start)))
		}
	}

	return errs
}

// regionAt returns the region containing the physical address.
func (d *Description) regionAt(addr uint64) (Region, bool) {
	for _, r := range d.Regions {
		if addr >= uint64(r.Start) && addr-uint64(r.Start) < uint64(r.Length) {
			return r, true
		}
	}
	return Region{}, false
}

// MemoryRegions converts the regions to the boot handoff representation.
// The description must have been validated.
func (d *Description) MemoryRegions() []boot.MemoryRegion {
	regions := make([]boot.MemoryRegion, 0, len(d.Regions))
	for _, r := range d.Regions {
		typ, _ := boot.ParseRegionType(r.Type)
		regions = append(regions, boot.MemoryRegion{
			Start: uint64(r.Start),
			End:   uint64(r.Start) + uint64(r.Length),
			Type:  typ,
		})
	}
	return regions
}

// AllocatorKind returns the frame allocator strategy selected by the
// description. An empty value selects the bump allocator.
func (d *Description) AllocatorKind() (pmm.Kind, error) {
	switch d.Allocator {
	case "", pmm.KindBump.String():
		return pmm.KindBump, nil
	case pmm.KindFreeList.String():
		return pmm.KindFreeList, nil
	default:
		return 0, fmt.Errorf("allocator %q is not one of %q or %q", d.Allocator, pmm.KindBump, pmm.KindFreeList)
	}
}
