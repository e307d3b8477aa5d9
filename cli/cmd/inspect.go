package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lattice/cli/reader"
	"github.com/pithecene-io/lattice/cli/render"
	"github.com/pithecene-io/lattice/schema"
)

// InspectCommand returns the inspect command with subcommands.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a schema or a frame-file output",
		Subcommands: []*cli.Command{
			inspectSchemaCommand(),
			inspectFramesCommand(),
		},
	}
}

func inspectSchemaCommand() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "Show the vertex and edge types of a schema",
		ArgsUsage: "<schema>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectSchemaAction,
	}
}

func inspectSchemaAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("schema path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	s, err := schema.Load(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	data := reader.SummarizeSchema(s)

	if c.Bool("tui") {
		return r.RenderTUI("inspect_schema", data)
	}
	return r.Render(data)
}

func inspectFramesCommand() *cli.Command {
	return &cli.Command{
		Name:      "frames",
		Usage:     "Count the elements of a frame-file output per label",
		ArgsUsage: "<dir>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectFramesAction,
	}
}

func inspectFramesAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("output directory required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	data, err := reader.InspectFrames(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to inspect frames: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_frames", data)
	}
	return r.Render(data)
}
