package framegraph

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Kind tags what a virtual resource stands for.
type Kind uint8

const (
	KindTexture Kind = iota
	KindRenderTarget
	KindBuffer
)

func (k Kind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindRenderTarget:
		return "render_target"
	case KindBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "texture", "":
		return KindTexture, nil
	case "render_target", "rendertarget":
		return KindRenderTarget, nil
	case "buffer":
		return KindBuffer, nil
	}
	return KindTexture, fmt.Errorf("unknown resource kind %q", s)
}

// Descriptor carries allocation metadata through to the allocator.
// The frame graph itself only looks at Kind.
type Descriptor struct {
	Kind    Kind
	Width   uint32
	Height  uint32
	Depth   uint32 // depth or array layers
	Levels  uint8  // mip levels
	Samples uint8
	Format  gputypes.TextureFormat
	Size    uint64 // buffers only, in bytes
}

// SubDescriptor selects the view a subresource refers to.
type SubDescriptor struct {
	Level uint8
	Layer uint32
}

// RenderTargetDescriptor describes an imported render target.
// Attachments, when non-zero, further restricts the usable attachments.
type RenderTargetDescriptor struct {
	Attachments Usage
	Samples     uint8
}

var formatNames = map[string]gputypes.TextureFormat{
	"undefined":            gputypes.TextureFormatUndefined,
	"r8unorm":              gputypes.TextureFormatR8Unorm,
	"rgba8unorm":           gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":           gputypes.TextureFormatBGRA8Unorm,
	"depth24plus-stencil8": gputypes.TextureFormatDepth24PlusStencil8,
}

// ParseFormat maps WebGPU-style names such as "rgba8unorm" to a texture format.
func ParseFormat(s string) (gputypes.TextureFormat, error) {
	if s == "" {
		return gputypes.TextureFormatUndefined, nil
	}
	f, ok := formatNames[strings.ToLower(s)]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("unknown texture format %q", s)
	}
	return f, nil
}

// FormatName is the inverse of ParseFormat.
func FormatName(f gputypes.TextureFormat) string {
	for name, v := range formatNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("format(%d)", uint32(f))
}
