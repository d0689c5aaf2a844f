package framegraph

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Usage is a bitmask of how passes use a resource.
type Usage uint32

const (
	UsageSampleable Usage = 1 << iota
	UsageColorAttachment
	UsageDepthAttachment
	UsageStencilAttachment
	UsageUploadable
	UsageStorage
	UsageSubpassInput
	UsageBlitSrc
	UsageBlitDst

	UsageNone Usage = 0
)

// UsageAttachments are the only usages an imported render target supports.
const UsageAttachments = UsageColorAttachment | UsageDepthAttachment | UsageStencilAttachment

var usageNames = []struct {
	bit  Usage
	name string
}{
	{UsageSampleable, "SAMPLEABLE"},
	{UsageColorAttachment, "COLOR_ATTACHMENT"},
	{UsageDepthAttachment, "DEPTH_ATTACHMENT"},
	{UsageStencilAttachment, "STENCIL_ATTACHMENT"},
	{UsageUploadable, "UPLOADABLE"},
	{UsageStorage, "STORAGE"},
	{UsageSubpassInput, "SUBPASS_INPUT"},
	{UsageBlitSrc, "BLIT_SRC"},
	{UsageBlitDst, "BLIT_DST"},
}

// Has reports whether every bit of f is set in u.
func (u Usage) Has(f Usage) bool {
	return u&f == f
}

// String renders the set bits, e.g. "SAMPLEABLE|COLOR_ATTACHMENT".
func (u Usage) String() string {
	if u == UsageNone {
		return "NONE"
	}
	var parts []string
	for _, n := range usageNames {
		if u&n.bit != 0 {
			parts = append(parts, n.name)
			u &^= n.bit
		}
	}
	if u != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(u)))
	}
	return strings.Join(parts, "|")
}

// ParseUsage accepts names like "sampleable" or "COLOR_ATTACHMENT".
func ParseUsage(names ...string) (Usage, error) {
	var u Usage
	for _, name := range names {
		found := false
		for _, n := range usageNames {
			if strings.EqualFold(n.name, strings.ReplaceAll(name, "-", "_")) {
				u |= n.bit
				found = true
				break
			}
		}
		if !found {
			return UsageNone, fmt.Errorf("unknown usage %q", name)
		}
	}
	return u, nil
}

// TextureUsage translates to the WebGPU usage a backing texture needs.
func (u Usage) TextureUsage() gputypes.TextureUsage {
	var t gputypes.TextureUsage
	if u&(UsageSampleable|UsageSubpassInput) != 0 {
		t |= gputypes.TextureUsageTextureBinding
	}
	if u&UsageAttachments != 0 {
		t |= gputypes.TextureUsageRenderAttachment
	}
	if u&UsageStorage != 0 {
		t |= gputypes.TextureUsageStorageBinding
	}
	if u&(UsageUploadable|UsageBlitDst) != 0 {
		t |= gputypes.TextureUsageCopyDst
	}
	if u&UsageBlitSrc != 0 {
		t |= gputypes.TextureUsageCopySrc
	}
	return t
}

// BufferUsage translates to the WebGPU usage a backing buffer needs.
func (u Usage) BufferUsage() gputypes.BufferUsage {
	var b gputypes.BufferUsage
	if u&UsageSampleable != 0 {
		b |= gputypes.BufferUsageUniform
	}
	if u&UsageStorage != 0 {
		b |= gputypes.BufferUsageStorage
	}
	if u&(UsageUploadable|UsageBlitDst) != 0 {
		b |= gputypes.BufferUsageCopyDst
	}
	if u&UsageBlitSrc != 0 {
		b |= gputypes.BufferUsageCopySrc
	}
	return b
}
