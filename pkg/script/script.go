// Package script describes a frame in TOML and replays it against a
// frame graph.
//
// A frame file starts with its top-level keys, then lists imported
// resources, passes in declaration order and forwards. Top-level keys
// must come before the first table, or TOML assigns them to that table:
//
//	name = "deferred"
//	present = ["hdr"]
//
//	[[resources]]
//	name = "backbuffer"
//	kind = "render_target"
//	format = "bgra8unorm"
//	attachments = ["color_attachment"]
//
//	[[passes]]
//	name = "lighting"
//	[[passes.creates]]
//	name = "hdr"
//	format = "rgba8unorm"
//	width = 1920
//	height = 1080
//	[[passes.writes]]
//	resource = "hdr"
//	usage = ["color_attachment"]
package script

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Frame is a parsed frame description.
type Frame struct {
	Name      string         `koanf:"name" json:"name"`
	Resources []ResourceSpec `koanf:"resources" json:"resources"`
	Passes    []PassSpec     `koanf:"passes" json:"passes"`
	Forwards  []ForwardSpec  `koanf:"forwards" json:"forwards,omitempty"`
	Present   []string       `koanf:"present" json:"present,omitempty"`
}

// ResourceSpec declares an imported resource, or a resource a pass creates.
type ResourceSpec struct {
	Name    string `koanf:"name" json:"name"`
	Kind    string `koanf:"kind" json:"kind,omitempty"`
	Width   uint32 `koanf:"width" json:"width,omitempty"`
	Height  uint32 `koanf:"height" json:"height,omitempty"`
	Depth   uint32 `koanf:"depth" json:"depth,omitempty"`
	Levels  uint8  `koanf:"levels" json:"levels,omitempty"`
	Samples uint8  `koanf:"samples" json:"samples,omitempty"`
	Format  string `koanf:"format" json:"format,omitempty"`
	Size    uint64 `koanf:"size" json:"size,omitempty"`

	// Subresources only.
	Parent string `koanf:"parent" json:"parent,omitempty"`
	Level  uint8  `koanf:"level" json:"level,omitempty"`
	Layer  uint32 `koanf:"layer" json:"layer,omitempty"`

	// Imported resources only.
	Attachments []string `koanf:"attachments" json:"attachments,omitempty"`
	Backing     uint64   `koanf:"backing" json:"backing,omitempty"`
}

// Access is one read or write of a named resource.
type Access struct {
	Resource string   `koanf:"resource" json:"resource"`
	Usage    []string `koanf:"usage" json:"usage,omitempty"`
}

// PassSpec declares one pass. Creates are declared first, then reads,
// then writes.
type PassSpec struct {
	Name       string         `koanf:"name" json:"name"`
	Creates    []ResourceSpec `koanf:"creates" json:"creates,omitempty"`
	Reads      []Access       `koanf:"reads" json:"reads,omitempty"`
	Writes     []Access       `koanf:"writes" json:"writes,omitempty"`
	SideEffect bool           `koanf:"side_effect" json:"sideEffect,omitempty"`
}

// ForwardSpec makes Replaced an alias of Resource after all passes are declared.
type ForwardSpec struct {
	Resource string `koanf:"resource" json:"resource"`
	Replaced string `koanf:"replaced" json:"replaced"`
}

// Load reads a frame description from a TOML file.
func Load(path string) (*Frame, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("loading frame %s: %w", path, err)
	}
	return unmarshal(k, path)
}

// Parse reads a frame description from TOML source.
func Parse(data []byte) (*Frame, error) {
	k := koanf.New(".")
	if err := k.Load(bytesProvider(data), toml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}
	return unmarshal(k, "<input>")
}

func unmarshal(k *koanf.Koanf, source string) (*Frame, error) {
	var f Frame
	err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &f,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", source, err)
	}
	if f.Name == "" {
		f.Name = source
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// bytesProvider feeds raw bytes to a koanf parser.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

func (b bytesProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("not implemented")
}
