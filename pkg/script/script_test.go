package script

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/ritzau/framegraph/pkg/framegraph"
	"github.com/ritzau/framegraph/pkg/logging"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func loadDeferred(t *testing.T) *Frame {
	t.Helper()
	f, err := Load("testdata/deferred.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return f
}

func run(t *testing.T, f *Frame) (*framegraph.FrameGraph, *Recorder) {
	t.Helper()
	fg := framegraph.New()
	rec := &Recorder{}
	if err := f.Build(fg, rec); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	fg.Compile()
	if err := fg.Execute(context.Background()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return fg, rec
}

func TestLoad(t *testing.T) {
	f := loadDeferred(t)

	if f.Name != "deferred" {
		t.Errorf("Expected name deferred, got %q", f.Name)
	}
	if len(f.Resources) != 1 || f.Resources[0].Kind != "render_target" {
		t.Errorf("Expected one imported render target, got %+v", f.Resources)
	}
	if len(f.Passes) != 6 {
		t.Fatalf("Expected 6 passes, got %d", len(f.Passes))
	}
	gbuffer := f.Passes[0]
	if len(gbuffer.Creates) != 3 || len(gbuffer.Writes) != 3 {
		t.Errorf("Unexpected gbuffer pass: %+v", gbuffer)
	}
	if got := gbuffer.Writes[2].Usage; !slices.Equal(got, []string{"depth_attachment", "stencil_attachment"}) {
		t.Errorf("Unexpected depth usage %v", got)
	}
}

func TestDeferredFrameCullsDebugOverlay(t *testing.T) {
	fg, rec := run(t, loadDeferred(t))

	want := []string{"gbuffer", "ssao", "lighting", "bloom_down", "tonemap"}
	if got := rec.Passes(); !slices.Equal(got, want) {
		t.Errorf("Expected executed passes %v, got %v", want, got)
	}
	if got := fg.Plan().Culled; !slices.Equal(got, []string{"debug_overlay"}) {
		t.Errorf("Expected debug_overlay culled, got %v", got)
	}
}

func TestRecorderBindings(t *testing.T) {
	_, rec := run(t, loadDeferred(t))

	var tonemap, bloom Execution
	for _, e := range rec.Executions() {
		switch e.Pass {
		case "tonemap":
			tonemap = e
		case "bloom_down":
			bloom = e
		}
	}

	var back, mip Binding
	for _, b := range tonemap.Bindings {
		switch b.Resource {
		case "backbuffer":
			back = b
		case "bloom_mip1":
			mip = b
		}
	}
	if back.Handle != 1 {
		t.Errorf("Expected backbuffer bound to handle 1, got %+v", back)
	}
	if !mip.Subresource || mip.Level != 1 {
		t.Errorf("Expected bloom_mip1 to be level 1 of bloom, got %+v", mip)
	}

	names := make([]string, len(bloom.Bindings))
	for i, b := range bloom.Bindings {
		names[i] = b.Resource
	}
	if !slices.Equal(names, []string{"bloom_mip1", "hdr"}) {
		t.Errorf("Expected bloom_down bindings sorted by name, got %v", names)
	}
}

func TestForwardAndPresent(t *testing.T) {
	f, err := Parse([]byte(`
present = ["shadowmap"]

[[resources]]
name = "swapchain"
kind = "render_target"
backing = 42

[[passes]]
name = "composite"
  [[passes.creates]]
  name = "scratch"
  [[passes.writes]]
  resource = "scratch"
  usage = ["color_attachment"]

[[passes]]
name = "shadow"
  [[passes.creates]]
  name = "shadowmap"
  format = "depth24plus-stencil8"
  [[passes.writes]]
  resource = "shadowmap"
  usage = ["depth_attachment"]

[[forwards]]
resource = "swapchain"
replaced = "scratch"
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	fg, rec := run(t, f)

	want := []string{"composite", "shadow"}
	if got := rec.Passes(); !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	composite := rec.Executions()[0]
	if len(composite.Bindings) != 1 || composite.Bindings[0].Handle != 42 {
		t.Errorf("Expected scratch to resolve to the swapchain, got %+v", composite.Bindings)
	}
	if fg.PassCount() != 3 {
		t.Errorf("Expected present to add a pass, got %d passes", fg.PassCount())
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte(`
[[resources]]
name = "back"
kind = "render_target"
format = "bogus"

[[passes]]
name = "p"
  [[passes.reads]]
  resource = "missing"
  [[passes.writes]]
  resource = "back"
  usage = ["teleport"]

[[passes]]
name = "p"
`))
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{
		`unknown texture format "bogus"`,
		`unknown resource "missing"`,
		`unknown usage "teleport"`,
		"pass declared twice",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got:\n%v", want, err)
		}
	}
}

func TestBuildReturnsPreconditionFailures(t *testing.T) {
	f, err := Parse([]byte(`
[[resources]]
name = "back"
kind = "render_target"

[[passes]]
name = "sampler"
  [[passes.reads]]
  resource = "back"
  usage = ["sampleable"]
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	err = f.Build(framegraph.New(), nil)
	if !errors.Is(err, framegraph.ErrIllegalUsage) {
		t.Fatalf("Expected ErrIllegalUsage, got %v", err)
	}
	var fe *framegraph.Error
	if !errors.As(err, &fe) || fe.Pass != "sampler" {
		t.Errorf("Expected error to name the pass, got %v", err)
	}
}

func TestUnknownKeysAreRejected(t *testing.T) {
	_, err := Parse([]byte(`
[[passes]]
name = "composite"
  [[passes.creates]]
  name = "scratch"
  [[passes.writes]]
  resource = "scratch"
  usage = ["color_attachment"]

[[forwards]]
resource = "scratch"
replaced = "scratch"

present = ["scratch"]
`))
	if err == nil {
		t.Fatal("Expected error for present inside a forwards table")
	}
	if !strings.Contains(err.Error(), "present") {
		t.Errorf("Expected error to name the misplaced key, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("testdata/absent.toml"); err == nil {
		t.Error("Expected error for missing file")
	}
}
