// Command rxsamples 运行响应式序列的示例场景
//
// 每个子命令对应一组场景，输出格式为 "<name> has generated value <v>"。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/phsym/zeroslog"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/xinjiayu/rx"
)

var rootArgs struct {
	verbose bool
	noColor bool
	tick    time.Duration
	timeout time.Duration
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行命令并返回退出码，帮助请求不打印错误
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if err := newRootCmd(out).ParseAndRun(ctx, args); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(errOut, "rxsamples:", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(out io.Writer) *ffcli.Command {
	fs := flag.NewFlagSet("rxsamples", flag.ContinueOnError)
	fs.BoolVar(&rootArgs.verbose, "verbose", false, "log sequence events at debug level")
	fs.BoolVar(&rootArgs.noColor, "no-color", false, "disable colored output")
	fs.DurationVar(&rootArgs.tick, "tick", 100*time.Millisecond, "base period of the time based samples")
	fs.DurationVar(&rootArgs.timeout, "timeout", 10*time.Second, "give up on a sample after this long")

	p := &printer{out: out}
	scenarios := []struct {
		name, help string
		run        func(ctx context.Context, p *printer) error
	}{
		{"subjects", "Subject, ReplaySubject, BehaviorSubject and AsyncSubject", runSubjects},
		{"filtering", "Where, Distinct, Skip/Take and friends", runFiltering},
		{"aggregation", "Count, Sum, Average, Min/Max and Scan", runAggregation},
		{"combinators", "Merge, Concat, Zip, CombineLatest and Amb", runCombinators},
		{"errors", "Catch, Retry, OnErrorResumeNext and Finally", runErrors},
		{"time", "Interval, Buffer, Throttle, Sample and Timeout", runTime},
		{"broker", "event broker built on a Subject", runBroker},
	}

	root := &ffcli.Command{
		Name:       "rxsamples",
		ShortUsage: "rxsamples [flags] <subcommand>",
		ShortHelp:  "Run reactive sequence samples",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("RXSAMPLES")},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}
	for _, sc := range scenarios {
		run := sc.run
		root.Subcommands = append(root.Subcommands, &ffcli.Command{
			Name:       sc.name,
			ShortUsage: "rxsamples " + sc.name,
			ShortHelp:  sc.help,
			Exec: func(ctx context.Context, args []string) error {
				if len(args) > 0 {
					return errors.Errorf("unexpected arguments: %q", args)
				}
				setup()
				ctx, cancel := context.WithTimeout(ctx, rootArgs.timeout)
				defer cancel()
				return run(ctx, p)
			},
		})
	}
	return root
}

func setup() {
	color.NoColor = color.NoColor || rootArgs.noColor
	level := slog.LevelWarn
	if rootArgs.verbose {
		level = slog.LevelDebug
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Str("component", "rxsamples").Logger()
	rx.SetLogger(slog.New(zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: level})))
}
