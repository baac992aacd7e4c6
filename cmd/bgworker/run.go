package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-bgworker/config"
	"github.com/Swind/go-bgworker/core"
	"github.com/urfave/cli/v2"
)

func workloadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "tasks",
			Aliases: []string{"n"},
			Value:   4,
			Usage:   "Number of background tasks",
		},
		&cli.IntFlag{
			Name:  "items",
			Value: 20,
			Usage: "Chunks published by each task",
		},
		&cli.DurationFlag{
			Name:  "item-delay",
			Value: 25 * time.Millisecond,
			Usage: "Delay before each chunk",
		},
		&cli.IntFlag{
			Name:  "fail-every",
			Usage: "Make every Nth task fail (0 disables)",
		},
		&cli.DurationFlag{
			Name:  "cancel-after",
			Usage: "Cancel unfinished tasks after this duration (0 disables)",
		},
	}
}

func workloadFromFlags(c *cli.Context) (workload, error) {
	w := workload{
		Tasks:       c.Int("tasks"),
		Items:       c.Int("items"),
		ItemDelay:   c.Duration("item-delay"),
		FailEvery:   c.Int("fail-every"),
		CancelAfter: c.Duration("cancel-after"),
	}
	switch {
	case w.Tasks < 1:
		return w, fmt.Errorf("tasks must be at least 1")
	case w.Items < 1:
		return w, fmt.Errorf("items must be at least 1")
	case w.ItemDelay < 0 || w.CancelAfter < 0:
		return w, fmt.Errorf("durations must not be negative")
	case w.FailEvery < 0:
		return w, fmt.Errorf("fail-every must not be negative")
	}
	return w, nil
}

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run a workload and print a summary",

		Flags: append(workloadFlags(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   formatText,
				Usage:   "Output format: text, json or yaml",
			},
		),

		Action: RunAction,
	}
}

func RunAction(c *cli.Context) error {
	return runWithFormat(c, c.String("format"))
}

func runWithFormat(c *cli.Context, format string) error {
	if !validFormat(format) {
		return cli.Exit(fmt.Sprintf("unknown format %q", format), 1)
	}
	w, err := workloadFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}

	logger := cfg.Logging.NewLogger(c.App.ErrWriter)
	s, err := runHeadless(c.Context, cfg, w, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	return writeSummary(c.App.Writer, format, s)
}

// runHeadless runs w with a SingleThreadTaskRunner as the consumer.
func runHeadless(ctx context.Context, cfg *config.Config, w workload, logger core.Logger) (summary, error) {
	inst, err := newInstruments(ctx, cfg.Metrics, logger)
	if err != nil {
		return summary{}, fmt.Errorf("start metrics: %w", err)
	}
	defer inst.Close()

	consumer := core.NewSingleThreadTaskRunner()
	consumer.SetName(cfg.Dispatch.Name)
	consumer.SetLogger(logger)
	defer consumer.Stop()

	pool := core.NewElasticPool(cfg.NewPoolConfig(logger, inst.metrics))
	defer pool.Shutdown()
	inst.watch(pool, pool.ID(), consumer, consumer.Name())

	opts := append(cfg.DispatcherOptions(logger, inst.metrics), core.WithPool(pool))
	d := core.NewDispatcher(consumer, opts...)

	logger.Info("workload started",
		core.F("tasks", w.Tasks),
		core.F("items", w.Items),
		core.F("pool", pool.ID()),
	)
	start := time.Now()
	reports := runWorkload(ctx, d, w, workloadHooks{})
	elapsed := time.Since(start)
	logger.Info("workload finished", core.F("elapsed", elapsed))

	return newSummary(d.Name(), pool.ID(), elapsed, reports), nil
}
