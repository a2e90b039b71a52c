package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/axle/pkg/archive"
	"github.com/platinummonkey/axle/pkg/descriptor"
)

// inspection is the result of reading one package's descriptor
type inspection struct {
	Archive    string                 `json:"archive" yaml:"archive"`
	Descriptor *descriptor.Descriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

func newInspectCommand() *Command {
	return &Command{
		Name:        "inspect",
		Description: "Validate package descriptors without loading native code",
		Run:         runInspect,
	}
}

func runInspect(args []string) error {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	flags.SetOutput(stderr)
	output := flags.String("output", outputText, "Output format (text, json, yaml)")
	concurrency := flags.Int("concurrency", 4, "Number of packages to read concurrently")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := checkOutputFormat(*output); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("at least one package is required")
	}

	results := inspectPackages(context.Background(), flags.Args(), *concurrency)

	if err := writeOutput(stdout, *output, results, func(w io.Writer) error {
		return writeInspectionTable(w, results)
	}); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	invalid := 0
	for _, r := range results {
		if r.Error != "" {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d packages are invalid", invalid, len(results))
	}
	return nil
}

// inspectPackages reads every descriptor, at most concurrency at a time.
// Results keep the order of paths.
func inspectPackages(ctx context.Context, paths []string, concurrency int) []inspection {
	log := logrus.New()
	log.SetOutput(stderr)
	ex := archive.NewExtractor(archive.DefaultLimits(), log)

	results := make([]inspection, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = inspectPackage(ex, path)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func inspectPackage(ex *archive.Extractor, path string) inspection {
	result := inspection{Archive: path}

	data, err := ex.ReadFile(path, descriptor.FileName)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	desc, err := descriptor.Parse(data)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Descriptor = desc
	return result
}

func writeInspectionTable(out io.Writer, results []inspection) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tNAME\tVERSION\tOBJFILE\tTHREADING\tSTATUS")
	for _, r := range results {
		if r.Descriptor == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\tinvalid: %s\n", r.Archive, r.Error)
			continue
		}
		d := r.Descriptor
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\tok\n", r.Archive, d.Name, d.Version, d.ObjFile, d.Threading)
	}
	return w.Flush()
}
