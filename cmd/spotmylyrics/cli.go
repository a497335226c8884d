package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"spotmylyrics/internal/app"

	"github.com/urfave/cli"
)

const defaultConfigPath = "./config.yaml"

func newCLI(in io.Reader, out io.Writer) *cli.App {
	c := cli.NewApp()
	c.Name = "spotmylyrics"
	c.HelpName = "spotmylyrics"
	c.Usage = "prints the lyrics of the song your player is on"
	c.UsageText = "spotmylyrics [--config FILE] [command] [arguments...]"
	c.Version = app.Version
	c.Writer = out
	c.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: defaultConfigPath,
			Usage: "path to the YAML (or JSON) config file",
		},
	}
	c.Action = func(ctx *cli.Context) error { return runInteractive(ctx, in, out) }
	c.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "poll the player and serve console commands (default)",
			Action: func(ctx *cli.Context) error { return runInteractive(ctx, in, out) },
		},
		{
			Name:   "daemon",
			Usage:  "poll the player without a console until SIGINT or SIGTERM",
			Action: func(ctx *cli.Context) error { return runDaemon(ctx, out) },
		},
		{
			Name:      "lookup",
			Aliases:   []string{"l"},
			Usage:     "print the lyrics of one song",
			ArgsUsage: "<artist> <title>",
			Action:    func(ctx *cli.Context) error { return lookup(ctx, out) },
		},
		{
			Name:  "cache",
			Usage: "inspect or empty the lyrics cache",
			Subcommands: []cli.Command{
				{
					Name:   "stats",
					Usage:  "print the item count and size",
					Action: func(ctx *cli.Context) error { return cacheStats(ctx, out) },
				},
				{
					Name:   "clear",
					Usage:  "delete every cached entry",
					Action: func(ctx *cli.Context) error { return cacheClear(ctx, out) },
				},
			},
		},
		{
			Name:  "version",
			Usage: "print the version",
			Action: func(*cli.Context) error {
				_, err := fmt.Fprintf(out, "SpotMyLyrics v.%s - By Skander J. (%s)\n", app.Version, app.AuthorURL)
				return err
			},
		},
	}
	return c
}

// configPath resolves --config whether it was given before or after the
// command name.
func configPath(ctx *cli.Context) string {
	if p := ctx.String("config"); ctx.IsSet("config") && p != "" {
		return p
	}
	if p := ctx.GlobalString("config"); p != "" {
		return p
	}
	return defaultConfigPath
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runInteractive(ctx *cli.Context, in io.Reader, out io.Writer) error {
	a, err := app.New(configPath(ctx), app.Options{Out: out})
	if err != nil {
		return err
	}
	sctx, cancel := signalContext()
	defer cancel()
	return a.Run(sctx, in)
}

func runDaemon(ctx *cli.Context, out io.Writer) error {
	a, err := app.New(configPath(ctx), app.Options{Out: out})
	if err != nil {
		return err
	}
	sctx, cancel := signalContext()
	defer cancel()
	return a.RunDaemon(sctx)
}

func lookup(ctx *cli.Context, out io.Writer) error {
	if ctx.NArg() != 2 {
		return errors.New("usage: spotmylyrics lookup <artist> <title>")
	}
	a, err := app.New(configPath(ctx), app.Options{Out: out})
	if err != nil {
		return err
	}
	defer a.Close()
	sctx, cancel := signalContext()
	defer cancel()
	_, err = a.Lookup(sctx, ctx.Args().Get(0), ctx.Args().Get(1))
	return err
}

func cacheStats(ctx *cli.Context, out io.Writer) error {
	a, err := app.New(configPath(ctx), app.Options{Out: out})
	if err != nil {
		return err
	}
	defer a.Close()
	st, err := a.Stats(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "(Cache size: %s)\n", st.Cache)
	return err
}

func cacheClear(ctx *cli.Context, out io.Writer) error {
	a, err := app.New(configPath(ctx), app.Options{Out: out})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.ClearCache(context.Background()); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, "Successfully cleared the cache!")
	return err
}
