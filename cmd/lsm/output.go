package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

func render(w io.Writer, format string, r *Report) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
		return renderText(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "method\t%s\n", r.Method)
	fmt.Fprintf(tw, "price\t%.6f\n", r.Price)
	if r.StdErr > 0 {
		fmt.Fprintf(tw, "std err\t%.6f\n", r.StdErr)
		fmt.Fprintf(tw, "95%% CI\t[%.6f, %.6f]\n", r.CILower, r.CIUpper)
	}
	if r.Paths > 0 {
		fmt.Fprintf(tw, "grid\t%d paths × %d steps\n", r.Paths, r.Steps)
	}
	if r.European != 0 {
		fmt.Fprintf(tw, "european (mc)\t%.6f\n", r.European)
	}
	if r.EarlyExercise != 0 {
		fmt.Fprintf(tw, "early exercise\t%.6f\n", r.EarlyExercise)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(tw, "skipped regressions\t%d\n", r.Skipped)
	}
	fmt.Fprintf(tw, "elapsed\t%s\n", r.Elapsed)
	if len(r.Reports) > 0 {
		fmt.Fprintln(tw, "\nstep\titm\texercised\tcoefficients")
		for _, rep := range r.Reports {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%v\n", rep.Step, rep.InTheMoney, rep.Exercised, rep.Coefficients)
		}
	}
	return tw.Flush()
}
