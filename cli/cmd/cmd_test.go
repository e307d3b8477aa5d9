package cmd

import (
	"flag"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestWithFlags_DoesNotAliasBase(t *testing.T) {
	base := make([]cli.Flag, 1, 4)
	base[0] = FormatFlag
	a := withFlags(base, NoColorFlag)
	b := withFlags(base, TUIFlag)
	if a[1].Names()[0] != "no-color" || b[1].Names()[0] != "tui" {
		t.Errorf("expected independent slices, got %v and %v", a[1].Names(), b[1].Names())
	}
}

// newTestCLIContext builds a context where only flagValues are explicitly
// set; defaults holds flags that exist with a default value.
func newTestCLIContext(t *testing.T, flagValues, defaults map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaults {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		app.Flags = append(app.Flags, &cli.StringFlag{Name: name, Value: val})
		fs.String(name, defaults[name], "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}
	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"schema": "cli.yaml"}, nil)
	if got := resolveString(c, "schema", "config.yaml"); got != "cli.yaml" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"schema": ""})
	if got := resolveString(c, "schema", "config.yaml"); got != "config.yaml" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_FlagDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"mode": "generate"})
	if got := resolveString(c, "mode", ""); got != "generate" {
		t.Errorf("expected flag default, got %q", got)
	}
}

func TestResolveString_ConfigBeatsFlagDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"mode": "generate"})
	if got := resolveString(c, "mode", "source"); got != "source" {
		t.Errorf("expected config over flag default, got %q", got)
	}
}

func TestResolveInt(t *testing.T) {
	newCtx := func(set bool) *cli.Context {
		app := cli.NewApp()
		app.Flags = []cli.Flag{&cli.IntFlag{Name: "workers"}}
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Int("workers", 0, "")
		if set {
			_ = fs.Set("workers", "4")
		}
		return cli.NewContext(app, fs, nil)
	}

	if got := resolveInt(newCtx(true), "workers", 16); got != 4 {
		t.Errorf("expected CLI to win with 4, got %d", got)
	}
	if got := resolveInt(newCtx(false), "workers", 16); got != 16 {
		t.Errorf("expected config fallback 16, got %d", got)
	}
}

func TestResolveInt64_ExplicitZeroWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.Int64Flag{Name: "ids-bottom"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int64("ids-bottom", 0, "")
	_ = fs.Set("ids-bottom", "0")
	c := cli.NewContext(app, fs, nil)

	if got := resolveInt64(c, "ids-bottom", 500); got != 0 {
		t.Errorf("expected explicit 0 to win, got %d", got)
	}
}

func TestResolveBool_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "drop-storage"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("drop-storage", false, "")
	_ = fs.Set("drop-storage", "false")
	c := cli.NewContext(app, fs, nil)

	if resolveBool(c, "drop-storage", true) {
		t.Error("expected explicit CLI false to win")
	}
}

func TestResolveDuration(t *testing.T) {
	newCtx := func(set bool) *cli.Context {
		app := cli.NewApp()
		app.Flags = []cli.Flag{&cli.DurationFlag{Name: "adapter-timeout"}}
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.Duration("adapter-timeout", 0, "")
		if set {
			_ = fs.Set("adapter-timeout", "30s")
		}
		return cli.NewContext(app, fs, nil)
	}

	if got := resolveDuration(newCtx(true), "adapter-timeout", 10*time.Second); got != 30*time.Second {
		t.Errorf("expected CLI 30s to win, got %v", got)
	}
	if got := resolveDuration(newCtx(false), "adapter-timeout", 10*time.Second); got != 10*time.Second {
		t.Errorf("expected config fallback 10s, got %v", got)
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg == nil || cfg.Schema != "" {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}
