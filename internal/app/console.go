package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Controller is what the interactive console drives.
type Controller interface {
	TogglePolling() (bool, error)
	Refresh() error
	ReloadAliases() (int, error)
	ClearCache(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Printer serializes console replies with lyric output.
type Printer interface {
	Println(a ...any)
	Printf(format string, a ...any)
}

// Console is the vim-style command loop.
type Console struct {
	ctl Controller
	out Printer
}

func NewConsole(ctl Controller, out Printer) *Console {
	return &Console{ctl: ctl, out: out}
}

func (c *Console) Banner(ctx context.Context) {
	c.out.Printf("SpotMyLyrics v.%s - By Skander J. (%s)\nThanks for using my software!\n", Version, AuthorURL)
	if st, err := c.ctl.Stats(ctx); err == nil {
		c.out.Printf("(Cache size: %s)\n", st.Cache)
	}
}

func (c *Console) help() {
	c.out.Printf("SpotMyLyrics v.%s - By Skander J. (%s)\n", Version, AuthorURL)
	c.out.Printf("\t:help (:h)\t\tPrints credits & commands list\n")
	c.out.Printf("\t:auto (:a)\t\tToggles auto-refreshing\n")
	c.out.Printf("\t:refresh (:r)\t\tFetches the lyrics to the current song\n")
	c.out.Printf("\t:aliases (:as)\t\tReloads the aliases file\n")
	c.out.Printf("\t:emptycache (:ec)\tDeletes all local copies\n")
	c.out.Printf("\t:stats (:s)\t\tPrints cache and polling statistics\n")
	c.out.Printf("\t:quit (:q)\t\tQuits the app\n")
}

// Handle runs one command line. It reports true when the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	switch strings.TrimSpace(line) {
	case "":
	case ":auto", ":a":
		on, err := c.ctl.TogglePolling()
		switch {
		case err != nil:
			c.out.Println("Couldn't toggle auto refreshing:", err)
		case on:
			c.out.Println("Auto refreshing enabled!")
		default:
			c.out.Println("Auto refreshing disabled!")
		}
	case ":help", ":h":
		c.help()
	case ":refresh", ":r":
		if err := c.ctl.Refresh(); err != nil {
			c.out.Println("Couldn't refresh:", err)
		}
	case ":aliases", ":as":
		if _, err := c.ctl.ReloadAliases(); err != nil {
			c.out.Println("An exception occurred while loading aliases:", err)
		} else {
			c.out.Println("Successfully reloaded the aliases file!")
		}
	case ":emptycache", ":ec":
		if err := c.ctl.ClearCache(ctx); err != nil {
			c.out.Println("Couldn't clear the cache:", err)
		} else {
			c.out.Println("Successfully cleared the cache!")
		}
	case ":stats", ":s":
		st, err := c.ctl.Stats(ctx)
		if err != nil {
			c.out.Println("Couldn't read stats:", err)
			return false
		}
		c.out.Println(st.String())
	case ":quit", ":q":
		return true
	default:
		c.out.Println("Unknown command, use :help or :h for a list of commands")
	}
	return false
}

// Run reads commands from in until :quit, EOF or ctx is done. It returns
// StopQuit for :quit and EOF and StopSignal when ctx ends first.
func (c *Console) Run(ctx context.Context, in io.Reader) (StopReason, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return StopSignal, nil
		case err := <-errc:
			return StopQuit, err
		case line := <-lines:
			if c.Handle(ctx, line) {
				return StopQuit, nil
			}
		}
	}
}

func (s Stats) String() string {
	polling := "disabled"
	if s.Polling {
		polling = "enabled"
	}
	return fmt.Sprintf("Cache: %s\nAliases: %d\nAuto refreshing: %s (%d runs)\nTasks: %d/%d queued, %d in flight, %d executed, %d dropped, %d panics",
		s.Cache, s.Aliases, polling, s.PollRuns,
		s.Engine.QueueLen, s.Engine.QueueCap, s.Engine.InFlight, s.Engine.Executed, s.Engine.Dropped, s.Engine.Panics)
}
