package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/platinummonkey/axle/pkg/config"
)

func newRunCommand() *Command {
	return &Command{
		Name:        "run",
		Description: "Load packages, optionally call a hook on each, then unload",
		Run:         runRun,
	}
}

func runRun(args []string) error {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.SetOutput(stderr)
	hook := flags.String("hook", "", "Hook to invoke on every loaded plugin")
	payload := flags.String("payload", "", "Payload passed to the hook")
	shadow := flags.Bool("allow-shadowing", false, "Let later packages replace earlier ones with the same name")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		return errors.New("at least one package is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if *shadow {
		cfg.Plugins.AllowShadowing = true
	}

	ctx := context.Background()
	h, err := newHost(ctx, cfg)
	if err != nil {
		return err
	}

	errs := runPackages(ctx, h, flags.Args(), *hook, []byte(*payload))

	if err := h.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// runPackages loads each package and invokes hook on it. Failures are
// reported and collected; later packages still run.
func runPackages(ctx context.Context, h *host, paths []string, hook string, payload []byte) []error {
	var errs []error

	for _, path := range paths {
		ref, err := h.manager.Load(ctx, path)
		if err != nil {
			fmt.Fprintf(stdout, "FAIL %s: %v\n", path, err)
			errs = append(errs, err)
			continue
		}

		info, err := h.manager.Plugin(ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(stdout, "loaded %s v%s (%s)\n", info.Name, info.Version, info.State)

		if hook == "" {
			continue
		}

		result, err := h.manager.InvokeHook(ctx, ref, hook, payload)
		if result != nil {
			fmt.Fprintln(stdout, result)
		}
		if err != nil {
			if result == nil {
				fmt.Fprintf(stdout, "FAIL %s.%s: %v\n", info.Name, hook, err)
			}
			errs = append(errs, err)
		}
	}

	return errs
}
