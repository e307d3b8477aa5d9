package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lattice/cli/reader"
	"github.com/pithecene-io/lattice/cli/render"
)

// ValidateResponse is the payload of the validate command.
type ValidateResponse struct {
	Valid  bool                  `json:"valid" yaml:"valid"`
	RunID  string                `json:"run_id" yaml:"run_id"`
	Mode   string                `json:"mode" yaml:"mode"`
	Output string                `json:"output" yaml:"output"`
	Phases []string              `json:"phases" yaml:"phases"`
	Schema *reader.SchemaSummary `json:"schema" yaml:"schema"`
}

// ValidateCommand returns the validate command. It resolves a run exactly
// like run does and constructs its controller, without starting a phase.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a run configuration and its schema without running",
		ArgsUsage: "[schema]",
		Flags:     withFlags(runFlags(), ReadOnlyFlags()...),
		Action:    validateAction,
	}
}

func validateAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for validate command", 1)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if c.NArg() > 0 && !c.IsSet("schema") {
		cfg.Schema = c.Args().First()
	}
	opts, err := resolveRunOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	plan, err := buildRun(c.Context, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid run config: %v", err), exitConfigError)
	}
	defer plan.close()

	resp := ValidateResponse{
		Valid:  true,
		RunID:  opts.runID,
		Mode:   opts.mode,
		Output: plan.collector.Snapshot().Output,
		Schema: reader.SummarizeSchema(plan.schema),
	}
	for _, p := range opts.phases {
		resp.Phases = append(resp.Phases, p.String())
	}
	return r.Render(resp)
}
