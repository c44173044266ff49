// Command adze evaluates a parametric field model and drives a solver
// platform with it.
//
//	adze export [-config f] [-p name=value]... [-o script] model.adz
//	adze render [-config f] [-p name=value]... [-o drawing.svg] model.adz
//	adze run    [-config f] [-p name=value]... [-name dir] model.adz
//	adze rerun  [-config f] [-name dir] archive.adz
//	adze sweep  [-config f] -axis name=v1,v2,... model.adz
//	adze runs   [-config f]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chazu/adze/pkg/config"
	"github.com/chazu/adze/pkg/logging"
	"github.com/samber/lo"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "adze:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet("adze "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	params := paramFlag{}
	axes := axisFlag{}
	out := fs.String("o", "", "output file (default: stdout)")
	name := fs.String("name", "", "run directory name under output_dir")
	switch cmd {
	case "export", "render", "run":
		fs.Var(params, "p", "parameter binding name=value (repeatable)")
	case "sweep":
		fs.Var(axes, "axis", "sweep axis name=v1,v2,... (repeatable)")
	case "rerun", "runs":
	default:
		usage(stderr)
		return errUsage
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(stderr)
	if err != nil {
		return err
	}
	logging.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := NewApp(cfg)
	if cmd == "runs" {
		return listRuns(ctx, app, stdout)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "adze %s: expected one file argument\n", cmd)
		return errUsage
	}
	path := fs.Arg(0)

	if cmd == "rerun" {
		r, err := app.Rerun(ctx, runName(*name), path)
		if err != nil {
			return err
		}
		return printRun(stdout, r.ID.String(), r.OK, r.Error)
	}

	source, err := app.readSource(path)
	if err != nil {
		return err
	}

	if cmd == "sweep" {
		if len(axes) == 0 {
			return errors.New("sweep needs at least one -axis")
		}
		outcomes, err := app.Sweep(ctx, source, axes)
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				fmt.Fprintf(stdout, "%s\terror\t%v\n", o.Case.Name, o.Err)
			case o.Run != nil:
				printRun(stdout, o.Case.Name, o.Run.OK, o.Run.Error)
			}
		}
		return err
	}

	res := app.Evaluate(source, params)
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w.Message)
	}
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			if e.Line > 0 {
				fmt.Fprintf(stderr, "%s:%d: %s\n", path, e.Line, e.Message)
			} else {
				fmt.Fprintf(stderr, "%s: %s\n", path, e.Message)
			}
		}
		return fmt.Errorf("%s: %d error(s)", path, len(res.Errors))
	}

	switch cmd {
	case "export", "render":
		w, closeOut, err := output(*out, stdout)
		if err != nil {
			return err
		}
		if cmd == "export" {
			err = app.Export(res.Model, scriptName(path), w)
		} else {
			err = app.Render(res.Model, scriptName(path), w)
		}
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		return err
	default: // run
		r, err := app.Run(ctx, runName(*name), source, map[string]float64(params), res.Model)
		if err != nil {
			return err
		}
		if r.Results != nil {
			for _, p := range r.Results.Points {
				fmt.Fprintf(stdout, "%s(%g, %g) = %g\n", p.Variable, p.X, p.Y, p.Value)
			}
			for _, s := range r.Results.Scalars {
				fmt.Fprintf(stdout, "%s = %g\n", s.Name, s.Value)
			}
		}
		return printRun(stdout, r.ID.String(), r.OK, r.Error)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: adze <export|render|run|rerun|sweep|runs> [flags] [file]")
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func output(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// scriptName is the model file name without its extension.
func scriptName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if base == "" {
		return "model"
	}
	return base
}

func runName(name string) string {
	if name != "" {
		return name
	}
	return "run-" + time.Now().UTC().Format("20060102-150405")
}

func printRun(w io.Writer, id string, ok bool, msg string) error {
	status := "ok"
	if !ok {
		status = "failed"
	}
	_, err := fmt.Fprintf(w, "%s\t%s\t%s\n", id, status, msg)
	return err
}

func listRuns(ctx context.Context, app *App, w io.Writer) error {
	runs, err := app.Runs(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLATFORM\tSTATUS\tDURATION\tPARAMS")
	for _, r := range runs {
		status := "ok"
		switch {
		case r.TimedOut:
			status = "timeout"
		case !r.OK:
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Platform, status, r.Duration, formatParams(r.Params))
	}
	return tw.Flush()
}

func formatParams(p map[string]float64) string {
	names := lo.Keys(p)
	sort.Strings(names)
	return strings.Join(lo.Map(names, func(n string, _ int) string {
		return fmt.Sprintf("%s=%g", n, p[n])
	}), " ")
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

// paramFlag collects -p name=value bindings.
type paramFlag map[string]float64

func (p paramFlag) String() string { return formatParams(p) }

func (p paramFlag) Set(s string) error {
	name, v, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	p[strings.TrimSpace(name)] = f
	return nil
}

// axisFlag collects -axis name=v1,v2,... sweep axes.
type axisFlag map[string][]float64

func (a axisFlag) String() string {
	names := lo.Keys(a)
	sort.Strings(names)
	return strings.Join(names, ",")
}

func (a axisFlag) Set(s string) error {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return fmt.Errorf("want name=v1,v2,..., got %q", s)
	}
	for _, field := range strings.Split(list, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		a[name] = append(a[name], f)
	}
	return nil
}
