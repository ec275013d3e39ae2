package rhi

import (
	"errors"
	"testing"
)

var allKinds = []ResourceKind{
	ResourceKindConstantBuffer,
	ResourceKindStructuredBuffer,
	ResourceKindStructuredBufferReadWrite,
	ResourceKindTexture,
	ResourceKindTextureReadWrite,
	ResourceKindSampler,
	ResourceKindAccelerationStructure,
}

func TestTranslateBinding(t *testing.T) {
	tests := []struct {
		name  string
		kind  ResourceKind
		slot  uint32
		count uint32
		want  uint32
	}{
		{"constant slot 0", ResourceKindConstantBuffer, 0, 1, 0},
		{"constant slot 19", ResourceKindConstantBuffer, 19, 1, 19},
		{"rw buffer", ResourceKindStructuredBufferReadWrite, 3, 1, 23},
		{"rw texture", ResourceKindTextureReadWrite, 0, 0, 20},
		{"sampler", ResourceKindSampler, 5, 1, 45},
		{"ro buffer", ResourceKindStructuredBuffer, 2, 1, 62},
		{"texture", ResourceKindTexture, 0, 1, 60},
		{"acceleration structure", ResourceKindAccelerationStructure, 19, 1, 79},
		{"array fits band", ResourceKindTexture, 10, 10, 70},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TranslateBinding(tt.kind, tt.slot, tt.count)
			if err != nil {
				t.Fatalf("TranslateBinding() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TranslateBinding(%s, %d, %d) = %d, want %d", tt.kind, tt.slot, tt.count, got, tt.want)
			}
		})
	}
}

func TestTranslateBindingOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		kind  ResourceKind
		slot  uint32
		count uint32
	}{
		{"slot 20 would alias next band", ResourceKindConstantBuffer, 20, 1},
		{"array crosses band", ResourceKindSampler, 15, 6},
		{"huge slot", ResourceKindTexture, 1 << 31, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TranslateBinding(tt.kind, tt.slot, tt.count)
			if !errors.Is(err, ErrSlotOutOfRange) {
				t.Errorf("TranslateBinding() error = %v, want ErrSlotOutOfRange", err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error %v does not wrap ErrValidation", err)
			}
		})
	}

	if _, err := TranslateBinding(ResourceKind(42), 0, 1); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown kind: error = %v, want ErrValidation", err)
	}
}

// Distinct (class, slot) pairs never share a native binding.
func TestTranslateBindingNoCollision(t *testing.T) {
	type key struct {
		class BindingClass
		slot  uint32
	}
	owner := make(map[uint32]key)
	for _, kind := range allKinds {
		for slot := range uint32(SlotsPerClass) {
			got, err := TranslateBinding(kind, slot, 1)
			if err != nil {
				t.Fatalf("TranslateBinding(%s, %d) error = %v", kind, slot, err)
			}
			k := key{kind.Class(), slot}
			if prev, ok := owner[got]; ok && prev != k {
				t.Fatalf("binding %d shared by %v and %v", got, prev, k)
			}
			owner[got] = k
		}
	}
	if len(owner) != 4*SlotsPerClass {
		t.Errorf("distinct bindings = %d, want %d", len(owner), 4*SlotsPerClass)
	}
}

func TestBindingClassBands(t *testing.T) {
	want := map[BindingClass]uint32{
		BindingClassConstantBuffer:   0,
		BindingClassReadWriteStorage: 20,
		BindingClassSampler:          40,
		BindingClassReadOnlyStorage:  60,
	}
	for class, band := range want {
		if got := class.Band(); got != band {
			t.Errorf("%s.Band() = %d, want %d", class, got, band)
		}
	}
}

func TestResourceKindString(t *testing.T) {
	for _, kind := range allKinds {
		if s := kind.String(); s == "" || s[0] == 'U' {
			t.Errorf("ResourceKind(%d).String() = %q", kind, s)
		}
	}
	if got := ResourceKind(99).String(); got != "Unknown(99)" {
		t.Errorf("ResourceKind(99).String() = %q", got)
	}
}
