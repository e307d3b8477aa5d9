package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lattice/adapter/redis"
	"github.com/pithecene-io/lattice/adapter/webhook"
	"github.com/pithecene-io/lattice/cli/config"
	"github.com/pithecene-io/lattice/cli/reader"
	"github.com/pithecene-io/lattice/source"
	"github.com/pithecene-io/lattice/types"
)

const socialSchema = "../../schema/testdata/social.yaml"

// newTestApp wires every command with ExitErrHandler suppressed so errors
// are returned instead of calling os.Exit.
func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{RunCommand(), ValidateCommand(), InspectCommand(), StatsCommand()}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitCoder cli.ExitCoder
	if !errors.As(err, &exitCoder) {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	return exitCoder.ExitCode()
}

func TestRunAction_MissingSchema(t *testing.T) {
	err := newTestApp().Run([]string{"lattice", "run", "--scale", "10"})
	if err == nil {
		t.Fatal("expected error for missing schema")
	}
	if !strings.Contains(err.Error(), "--schema is required") {
		t.Errorf("error should mention --schema is required, got: %v", err)
	}
	if code := exitCode(t, err); code != exitConfigError {
		t.Errorf("expected exit code %d, got %d", exitConfigError, code)
	}
}

func TestRunAction_MissingSourceInSourceMode(t *testing.T) {
	err := newTestApp().Run([]string{"lattice", "run", "--schema", socialSchema, "--mode", "source"})
	if err == nil || !strings.Contains(err.Error(), "--source is required") {
		t.Fatalf("expected --source is required error, got %v", err)
	}
}

func TestRunAction_ConfigFileNotFound(t *testing.T) {
	err := newTestApp().Run([]string{"lattice", "run", "--config", "/nonexistent/lattice.yaml"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected config not found error, got %v", err)
	}
}

func TestRunAction_InvalidPhase(t *testing.T) {
	err := newTestApp().Run([]string{"lattice", "run", "--schema", socialSchema, "--scale", "1", "--phase", "three"})
	if err == nil || !strings.Contains(err.Error(), "unknown phase") {
		t.Fatalf("expected unknown phase error, got %v", err)
	}
}

func TestRunAction_FramesEndToEnd(t *testing.T) {
	dir := t.TempDir()
	err := newTestApp().Run([]string{"lattice", "run",
		"--schema", socialSchema,
		"--run-id", "run-frames",
		"--scale", "20",
		"--workers", "2",
		"--chunk-size", "3",
		"--seed", "7",
		"--output", "frames",
		"--output-path", dir,
		"--quiet",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	sum, err := reader.InspectFrames(dir)
	if err != nil {
		t.Fatalf("InspectFrames failed: %v", err)
	}
	if sum.Vertices != 160 {
		t.Errorf("expected 160 vertices, got %d", sum.Vertices)
	}
	if sum.Edges != 140 {
		t.Errorf("expected 140 edges, got %d", sum.Edges)
	}
	if sum.Truncated != 0 {
		t.Errorf("expected no truncated files, got %d", sum.Truncated)
	}
}

func TestRunAction_ConfigProvidesFields(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lattice.yaml")
	schemaPath, err := filepath.Abs(socialSchema)
	if err != nil {
		t.Fatal(err)
	}
	yaml := "schema: " + schemaPath + "\nscale: 5\nworkers: 1\noutput:\n  name: frames\n  path: " + filepath.Join(dir, "out") + "\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	// --scale overrides the file.
	if err := newTestApp().Run([]string{"lattice", "run", "--config", cfgPath, "--scale", "2", "--quiet"}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	sum, err := reader.InspectFrames(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("InspectFrames failed: %v", err)
	}
	if sum.Vertices != 16 {
		t.Errorf("expected 16 vertices for scale 2, got %d", sum.Vertices)
	}
}

func TestRunAction_UnknownOutputIsConfigError(t *testing.T) {
	err := newTestApp().Run([]string{"lattice", "run", "--schema", socialSchema, "--scale", "1", "--output", "bogus", "--quiet"})
	if err == nil {
		t.Fatal("expected error for unknown output")
	}
	if code := exitCode(t, err); code != exitConfigError {
		t.Errorf("expected exit code %d, got %d (%v)", exitConfigError, code, err)
	}
}

func TestRunAction_BufferedPolicyNeedsLimits(t *testing.T) {
	err := newTestApp().Run([]string{"lattice", "run", "--schema", socialSchema, "--scale", "1", "--policy", "buffered", "--quiet"})
	if err == nil || !strings.Contains(err.Error(), "buffer_records") {
		t.Fatalf("expected buffered policy error, got %v", err)
	}
}

func TestRunAndStats_LodeMetrics(t *testing.T) {
	dir := t.TempDir()
	err := newTestApp().Run([]string{"lattice", "run",
		"--schema", socialSchema,
		"--run-id", "run-lode",
		"--scale", "4",
		"--output", "lode",
		"--output-path", dir,
		"--quiet",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if err := newTestApp().Run([]string{"lattice", "stats", "--storage-path", dir, "--run-id", "run-lode", "--format", "json"}); err != nil {
		t.Fatalf("stats failed: %v", err)
	}

	err = newTestApp().Run([]string{"lattice", "stats", "--storage-path", dir, "--run-id", "missing", "--format", "json"})
	if err == nil || !strings.Contains(err.Error(), "no metrics record found") {
		t.Fatalf("expected no metrics error, got %v", err)
	}
}

func TestValidateAction(t *testing.T) {
	if err := newTestApp().Run([]string{"lattice", "validate", "--scale", "10", "--format", "json", socialSchema}); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	err := newTestApp().Run([]string{"lattice", "validate", "--format", "json", socialSchema})
	if err == nil || !strings.Contains(err.Error(), "scale") {
		t.Fatalf("expected scale config error, got %v", err)
	}

	err = newTestApp().Run([]string{"lattice", "validate", "--tui", socialSchema})
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected --tui rejection, got %v", err)
	}
}

func TestInspectActions_MissingArgs(t *testing.T) {
	for _, sub := range []string{"schema", "frames"} {
		err := newTestApp().Run([]string{"lattice", "inspect", sub})
		if err == nil {
			t.Errorf("inspect %s: expected error for missing argument", sub)
		}
	}
}

func TestInspectSchema(t *testing.T) {
	if err := newTestApp().Run([]string{"lattice", "inspect", "schema", "--format", "yaml", socialSchema}); err != nil {
		t.Fatalf("inspect schema failed: %v", err)
	}
}

func TestBuildSource(t *testing.T) {
	ctx := t.Context()

	src, err := buildSource(ctx, config.SourceConfig{})
	if err != nil || src != nil {
		t.Errorf("expected no source, got %v, %v", src, err)
	}

	src, err = buildSource(ctx, config.SourceConfig{Kind: "jsonl", Path: "in.jsonl"})
	if err != nil {
		t.Fatalf("buildSource(jsonl) failed: %v", err)
	}
	if _, ok := src.(*source.JSONL); !ok {
		t.Errorf("expected *source.JSONL, got %T", src)
	}

	src, err = buildSource(ctx, config.SourceConfig{Kind: "dataset", Backend: "memory", Path: "unused"})
	if err != nil {
		t.Fatalf("buildSource(dataset) failed: %v", err)
	}
	if _, ok := src.(*source.Dataset); !ok {
		t.Errorf("expected *source.Dataset, got %T", src)
	}

	_, err = buildSource(ctx, config.SourceConfig{Kind: "csv", Path: "in.csv"})
	if !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestBuildAdapter(t *testing.T) {
	a, err := buildAdapter(config.AdapterConfig{})
	if err != nil || a != nil {
		t.Errorf("expected no adapter, got %v, %v", a, err)
	}

	a, err = buildAdapter(config.AdapterConfig{Type: "webhook", URL: "http://127.0.0.1:1/hook"})
	if err != nil {
		t.Fatalf("buildAdapter(webhook) failed: %v", err)
	}
	if _, ok := a.(*webhook.Adapter); !ok {
		t.Errorf("expected *webhook.Adapter, got %T", a)
	}
	_ = a.Close()

	zero := 0
	a, err = buildAdapter(config.AdapterConfig{Type: "redis", URL: "redis://127.0.0.1:1/0", Retries: &zero})
	if err != nil {
		t.Fatalf("buildAdapter(redis) failed: %v", err)
	}
	if _, ok := a.(*redis.Adapter); !ok {
		t.Errorf("expected *redis.Adapter, got %T", a)
	}
	_ = a.Close()

	tests := []config.AdapterConfig{
		{Type: "webhook"},
		{Type: "redis", URL: "not a url"},
		{Type: "kafka", URL: "x"},
	}
	for _, cfg := range tests {
		if _, err := buildAdapter(cfg); !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("%s: expected configuration error, got %v", cfg.Type, err)
		}
	}
}
