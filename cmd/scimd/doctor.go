package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-scimd/internal/bibliography"
	"github.com/alnah/go-scimd/internal/config"
	"github.com/alnah/go-scimd/internal/fileutil"
	"github.com/alnah/go-scimd/internal/hints"
	"github.com/alnah/go-scimd/internal/manifest"
	"github.com/alnah/go-scimd/internal/yamlutil"
)

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Tools    []toolInfo `json:"tools"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// toolInfo holds the detection result of one external renderer tool.
type toolInfo struct {
	Name     string `json:"name"`
	Found    bool   `json:"found"`
	Path     string `json:"path,omitempty"`
	Required bool   `json:"required"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Container bool   `json:"container"`
	CI        bool   `json:"ci"`
}

// systemInfo holds system check results.
type systemInfo struct {
	CacheDir      string `json:"cache_dir"`
	CacheWritable bool   `json:"cache_writable"`
	MathEngine    string `json:"math_engine"`
	SQLiteDriver  string `json:"sqlite_driver"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(args []string, env *Environment) int {
	fset := newFlagSet("doctor")
	var f doctorFlags
	addCommonFlags(fset, &f.common)
	fset.BoolVar(&f.json, "json", false, "output in JSON format")
	fset.BoolVar(&f.showConfig, "show-config", false, "print the effective configuration")

	if _, err := parseArgs(fset, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printDoctorUsage(env.Stdout)
			return ExitSuccess
		}
		printError(env.Stderr, err)
		return exitCodeFor(err)
	}

	cfg, _, err := configure(env, &f.common, nil)
	if err != nil {
		printError(env.Stderr, err)
		return exitCodeFor(err)
	}

	result := runDoctor(cfg, env)

	if f.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}
	if f.showConfig {
		if err := printConfig(env.Stdout, cfg); err != nil {
			printError(env.Stderr, err)
			return ExitGeneral
		}
	}

	if result.Status == statusErrors {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(cfg *config.Config, env *Environment) *doctorResult {
	result := &doctorResult{
		Status: statusReady,
		Env: envInfo{
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			Container: hints.IsInContainer(),
			CI:        env.Getenv("CI") != "" || env.Getenv("GITHUB_ACTIONS") != "" || env.Getenv("GITLAB_CI") != "",
		},
		System: systemInfo{
			MathEngine:   cfg.Math.Engine,
			SQLiteDriver: manifest.DriverType(),
		},
	}

	checkTools(result, cfg, env)
	checkBibliography(result, cfg)
	checkCache(result, cfg)

	if len(result.Errors) > 0 {
		result.Status = statusErrors
	} else if len(result.Warnings) > 0 {
		result.Status = statusWarnings
	}
	return result
}

// checkTools looks up the renderer binaries. latex and dvisvgm are only
// required when equations render through LaTeX; gnuplot only for plots.
func checkTools(result *doctorResult, cfg *config.Config, env *Environment) {
	latexMath := cfg.Math.Engine == "" || cfg.Math.Engine == "latex"
	tools := []toolInfo{
		{Name: "latex", Required: latexMath},
		{Name: "dvisvgm", Required: latexMath},
		{Name: "gnuplot"},
	}
	for i := range tools {
		t := &tools[i]
		path, err := env.LookPath(t.Name)
		if err == nil {
			t.Found, t.Path = true, path
			continue
		}
		msg := t.Name + " not found in PATH"
		if t.Required {
			result.Errors = append(result.Errors, msg+"; set math.engine: mathml to render equations without it")
		} else {
			result.Warnings = append(result.Warnings, msg+"; figures using it will fail")
		}
	}
	result.Tools = tools
}

func checkBibliography(result *doctorResult, cfg *config.Config) {
	if cfg.Bibliography.File == "" {
		return
	}
	if !fileutil.FileExists(cfg.Resolve(cfg.Bibliography.File)) {
		result.Errors = append(result.Errors, "bibliography not found: "+cfg.Resolve(cfg.Bibliography.File))
	}
	if cfg.Bibliography.Bib2xhtml == "" {
		return
	}
	tool := filepath.Join(cfg.Resolve(cfg.Bibliography.Bib2xhtml), bibliography.Tool)
	if !fileutil.FileExists(tool) {
		result.Errors = append(result.Errors, bibliography.Tool+" not found at "+tool)
	}
}

// checkCache verifies the cache directory can be written.
func checkCache(result *doctorResult, cfg *config.Config) {
	dir := cfg.Resolve(cfg.Paths.Cache)
	result.System.CacheDir = dir
	if !fileutil.DirExists(dir) {
		result.Warnings = append(result.Warnings, "cache directory "+dir+" does not exist yet; it is created on first build")
		return
	}
	f, err := os.CreateTemp(dir, ".scimd-doctor-*")
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("cache directory %s is not writable: %v", dir, err))
		return
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	result.System.CacheWritable = true
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "Renderer tools")
	for _, t := range r.Tools {
		switch {
		case t.Found:
			fmt.Fprintf(w, "  [OK] %s: %s\n", t.Name, t.Path)
		case t.Required:
			fmt.Fprintf(w, "  [ERROR] %s: not found\n", t.Name)
		default:
			fmt.Fprintf(w, "  [WARN] %s: not found\n", t.Name)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintln(w, "  [OK] running in a container")
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] running in CI")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "System")
	if r.System.CacheWritable {
		fmt.Fprintf(w, "  [OK] cache writable: %s\n", r.System.CacheDir)
	} else {
		fmt.Fprintf(w, "  [WARN] cache not writable: %s\n", r.System.CacheDir)
	}
	fmt.Fprintf(w, "  [OK] math engine: %s\n", r.System.MathEngine)
	fmt.Fprintf(w, "  [OK] sqlite driver: %s\n", r.System.SQLiteDriver)

	if len(r.Warnings) > 0 || len(r.Errors) > 0 {
		fmt.Fprintln(w)
	}
	for _, msg := range r.Warnings {
		fmt.Fprintf(w, "[WARN] %s\n", msg)
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(w, "[ERROR] %s\n", msg)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status: %s\n", r.Status)
}

// printConfig writes the effective configuration as YAML.
func printConfig(w io.Writer, cfg *config.Config) error {
	data, err := yamlutil.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Effective configuration")
	_, err = w.Write(data)
	return err
}
