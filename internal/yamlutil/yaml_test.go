package yamlutil_test

// Notes:
// - TestInputSizeLimit lowers the package-level MaxInputSize and does not
//   run in parallel.

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/yamlutil"
)

// ---------------------------------------------------------------------------
// TestUnmarshal_Config - Book configuration files
// ---------------------------------------------------------------------------

func TestUnmarshal_Config(t *testing.T) {
	t.Parallel()

	data := []byte(`
paths:
  root: books/thesis
  fragments: fragments
render:
  target: latex
  hash: blake3
  blockScale: 2.5
  workers: 4
math:
  engine: mathml
bibliography:
  file: refs.bib
  bib2xhtml: tools/bib2xhtml
manifest:
  enabled: true
`)

	cfg := config.DefaultConfig()
	if err := yamlutil.Unmarshal(data, cfg, yamlutil.Strict()); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if cfg.Paths.Root != "books/thesis" || cfg.Paths.Fragments != "fragments" {
		t.Errorf("Paths = %+v", cfg.Paths)
	}
	if cfg.Render.Target != "latex" || cfg.Render.Hash != "blake3" {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Render.BlockScale != 2.5 || cfg.Render.Workers != 4 {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Math.Engine != "mathml" {
		t.Errorf("Math.Engine = %q", cfg.Math.Engine)
	}
	if cfg.Bibliography.File != "refs.bib" || cfg.Bibliography.Bib2xhtml != "tools/bib2xhtml" {
		t.Errorf("Bibliography = %+v", cfg.Bibliography)
	}
	if !cfg.Manifest.Enabled {
		t.Error("Manifest.Enabled = false")
	}

	// Sections absent from the file keep their defaults.
	if cfg.Paths.Cache != "src/assets" {
		t.Errorf("Paths.Cache = %q, want default src/assets", cfg.Paths.Cache)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want defaults", cfg.Log)
	}
}

// ---------------------------------------------------------------------------
// TestUnmarshal_Strict - Unknown keys are typos, not extensions
// ---------------------------------------------------------------------------

func TestUnmarshal_Strict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"unknown render key", "render:\n  colour: red\n"},
		{"misspelled paths key", "paths:\n  fragment: src/fragments\n"},
		{"unknown section", "pdf:\n  pageSize: a4\n"},
		{"camel case mismatch", "render:\n  block_scale: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			if err := yamlutil.Unmarshal([]byte(tt.yaml), cfg, yamlutil.Strict()); err == nil {
				t.Errorf("Unmarshal(strict) accepted %q", tt.yaml)
			}

			lax := config.DefaultConfig()
			if err := yamlutil.Unmarshal([]byte(tt.yaml), lax); err != nil {
				t.Errorf("Unmarshal(lax) error = %v, want unknown keys ignored", err)
			}
		})
	}
}

func TestUnmarshal_TypeMismatch(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	err := yamlutil.Unmarshal([]byte("render:\n  workers: many\n"), cfg, yamlutil.Strict())
	if err == nil {
		t.Fatal("Unmarshal() accepted a string for render.workers")
	}
	if !strings.HasPrefix(err.Error(), "yamlutil: ") {
		t.Errorf("error = %q, want yamlutil prefix", err)
	}
}

// ---------------------------------------------------------------------------
// TestUnmarshal_InvalidInput - Guards before decoding
// ---------------------------------------------------------------------------

func TestUnmarshal_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		dest    any
		wantErr error
	}{
		{"nil data", nil, config.DefaultConfig(), yamlutil.ErrNilData},
		{"empty data", []byte{}, config.DefaultConfig(), yamlutil.ErrNilData},
		{"nil destination", []byte("log:\n  level: debug\n"), nil, yamlutil.ErrNilDestination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := yamlutil.Unmarshal(tt.data, tt.dest); !errors.Is(err, tt.wantErr) {
				t.Errorf("Unmarshal() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInputSizeLimit(t *testing.T) {
	prev := yamlutil.MaxInputSize
	yamlutil.MaxInputSize = 64
	defer func() { yamlutil.MaxInputSize = prev }()

	data := []byte("paths:\n  root: " + strings.Repeat("a", 64) + "\n")
	err := yamlutil.Unmarshal(data, config.DefaultConfig())
	if !errors.Is(err, yamlutil.ErrInputTooLarge) {
		t.Errorf("Unmarshal() error = %v, want ErrInputTooLarge", err)
	}
}

// ---------------------------------------------------------------------------
// TestMarshal_EffectiveConfig - Output of doctor --show-config
// ---------------------------------------------------------------------------

func TestMarshal_EffectiveConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Math.Engine = "mathml"
	cfg.Bibliography.File = "refs.bib"

	out, err := yamlutil.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	text := string(out)
	for _, want := range []string{
		"paths:",
		"fragments: src/fragments",
		"target: html",
		"blockScale:",
		"engine: mathml",
		"file: refs.bib",
		"level: warn",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Marshal() output missing %q:\n%s", want, text)
		}
	}

	// The printed configuration is itself a valid config file.
	loaded := &config.Config{}
	if err := yamlutil.Unmarshal(out, loaded, yamlutil.Strict()); err != nil {
		t.Fatalf("reloading printed config: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("reloaded config = %+v, want %+v", loaded, cfg)
	}
}
