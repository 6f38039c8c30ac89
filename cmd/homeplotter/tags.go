package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ArionMiles/homeplotter/pkg/tagger"
)

// runTags prints the tag hierarchy, optionally after adding or removing a
// tag or pattern. Edits are written back to the tag file.
func runTags(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("tags", out)
	add := fs.String("add", "", "Tag to add the pattern to, created when missing")
	pattern := fs.String("pattern", "", "Pattern to add or remove")
	parent := fs.String("parent", "", "Parent of a new tag")
	remove := fs.String("remove", "", "Tag to remove, or to remove -pattern from")
	used := fs.Bool("used", false, "List the tags present in the ledger instead of the hierarchy")
	levelOp := fs.String("level-op", ">=", "Level comparison for -used: == >= > < <=")
	level := fs.Int("level", 0, "Level for -used")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *add != "" && *remove != "" {
		return errors.New("-add and -remove are mutually exclusive")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}

	if *used {
		l, err := a.loadLedger(ctx)
		if err != nil {
			return err
		}
		tags, err := l.Tags(*levelOp, *level)
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Fprintln(out, t)
		}
		return nil
	}

	h, err := a.runner.Hierarchy(a.cfg)
	if err != nil {
		return err
	}

	switch {
	case *add != "":
		if *pattern == "" {
			return errors.New("-add requires -pattern")
		}
		if err := h.Append(*add, *pattern, *parent); err != nil {
			return err
		}
	case *remove != "" && *pattern != "":
		if err := h.RemovePattern(*remove, *pattern); err != nil {
			return err
		}
	case *remove != "":
		if err := h.Remove(*remove); err != nil {
			return err
		}
	}

	if *add != "" || *remove != "" {
		if err := h.Save(a.cfg.TagFile); err != nil {
			return err
		}
		a.logger.Info("Tag file updated", "path", a.cfg.TagFile, "tags", len(h.Tags()))
	}

	printHierarchy(out, h)
	return nil
}

func printHierarchy(out io.Writer, h *tagger.Hierarchy) {
	for _, tag := range h.Tags() {
		lvl, err := h.Level(tag)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "%s%s", strings.Repeat("  ", lvl), tag)
		if p := h.Patterns(tag); len(p) > 0 {
			fmt.Fprintf(out, ": %s", strings.Join(p, ", "))
		}
		fmt.Fprintln(out)
	}
}

// runMatch prints the tags a text resolves to.
func runMatch(_ context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("match", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: homeplotter match [-config PATH] TEXT")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	h, err := a.runner.Hierarchy(a.cfg)
	if err != nil {
		return err
	}

	tags := h.Match(strings.Join(fs.Args(), " "))
	if len(tags) == 0 {
		fmt.Fprintln(out, "(no tags)")
		return nil
	}
	fmt.Fprintln(out, strings.Join(tags, ", "))
	return nil
}
