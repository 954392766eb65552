// Command lsm 离线定价工具：在模拟或文件提供的价格网格上运行 LSM，并给出二叉树与解析解参考值
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/wyfcoding/optionpricing/internal/pricing/infrastructure/codec"
	"github.com/wyfcoding/optionpricing/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	_ = logger.Init(logger.Config{Level: "info", Format: "text", Output: "stderr"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := dispatch(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Error(ctx, "lsm failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  lsm price    [-job job.yaml] [-grid paths.csv] [-k 40 -r 0.06 -t 1 -put] [-diag] [-format text|json|yaml]")
	fmt.Fprintln(w, "  lsm binomial [-job job.yaml] [-s0 36 -k 40 -sigma 0.2 -steps 500]")
	fmt.Fprintln(w, "  lsm european [-job job.yaml] [-s0 36 -k 40 -sigma 0.2 -paths 100000]")
	fmt.Fprintln(w, "  lsm simulate [-job job.yaml] -out grid.lsmg [-compress zstd|lz4|s2|none]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notes:")
	fmt.Fprintln(w, "  - grid files ending in .csv hold one path per row, t=0 first; other files use the binary grid format")
	fmt.Fprintln(w, "  - flags given on the command line override values from -job")
}

func dispatch(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "price", "binomial", "european", "simulate":
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	job := defaultJob()
	jobPath := fs.String("job", "", "YAML job file")
	format := fs.String("format", "text", "output format: text, json, yaml")
	diag := fs.Bool("diag", false, "include per-step regression diagnostics")
	outPath := fs.String("out", "", "output grid file (simulate)")
	compress := fs.String("compress", "zstd", "binary grid compression (simulate)")
	fs.Float64Var(&job.Spot, "s0", job.Spot, "spot price")
	fs.Float64Var(&job.Strike, "k", job.Strike, "strike")
	fs.Float64Var(&job.Maturity, "t", job.Maturity, "maturity in years")
	fs.Float64Var(&job.Rate, "r", job.Rate, "continuously compounded risk-free rate")
	fs.Float64Var(&job.Dividend, "q", job.Dividend, "continuous dividend yield")
	fs.Float64Var(&job.Volatility, "sigma", job.Volatility, "volatility")
	fs.BoolVar(&job.Put, "put", job.Put, "price a put (false for a call)")
	fs.IntVar(&job.Paths, "paths", job.Paths, "simulated paths")
	fs.IntVar(&job.Steps, "steps", job.Steps, "time steps")
	fs.IntVar(&job.Degree, "degree", job.Degree, "regression polynomial degree")
	fs.Uint64Var(&job.Seed, "seed", job.Seed, "random seed")
	fs.IntVar(&job.Workers, "workers", job.Workers, "simulation workers, 0 = GOMAXPROCS")
	fs.StringVar(&job.Grid, "grid", job.Grid, "price grid file (.csv or binary)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// 任务文件打底，命令行显式给出的参数再覆盖一次
	if *jobPath != "" {
		loaded, err := LoadJob(*jobPath)
		if err != nil {
			return err
		}
		job = loaded
		if err := fs.Parse(args); err != nil {
			return err
		}
	}

	var (
		report *Report
		err    error
	)
	switch cmd {
	case "price":
		report, err = runPrice(ctx, job, *diag)
	case "binomial":
		report, err = runBinomial(job)
	case "european":
		report, err = runEuropean(ctx, job)
	case "simulate":
		if *outPath == "" {
			return fmt.Errorf("simulate: -out is required")
		}
		c, perr := codec.ParseCompression(*compress)
		if perr != nil {
			return perr
		}
		grid, serr := runSimulate(ctx, job, *outPath, c)
		if serr != nil {
			return serr
		}
		logger.Info(ctx, "grid written", "path", *outPath, "paths", grid.Paths(), "steps", grid.Steps(), "compression", c.String())
		return nil
	}
	if err != nil {
		return err
	}
	return render(out, *format, report)
}
