// Copyright 2018 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command extract parses a UEFI firmware image and, for each GUID given on
// the command line, writes the matching File item's body to disk. With no
// GUIDs given, it prints the parse tree instead.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	flags "github.com/jessevdk/go-flags"

	"github.com/uefitree/uefitree/pkg/guid"
	"github.com/uefitree/uefitree/pkg/item"
	"github.com/uefitree/uefitree/pkg/log"
	"github.com/uefitree/uefitree/pkg/parser"
)

type options struct {
	OutDir  string `short:"o" long:"out" description:"directory extracted files are written to" default:"."`
	Verbose bool   `short:"v" long:"verbose" description:"print diagnostics to stderr"`
	Args    struct {
		Image string   `positional-arg-name:"image" required:"true"`
		GUIDs []string `positional-arg-name:"guid"`
	} `positional-args:"true"`
}

// spec.md §6: "extract <image> [guid…] returns a bitmask where bit N
// indicates GUID N was not found; exit 0 means all GUIDs were found; exit 1
// on usage error." A request for more than 63 GUIDs can't be represented in
// one int and is rejected outright rather than silently truncated.
const maxTrackedGUIDs = 63

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	parserFlags := flags.NewParser(&opts, flags.Default&^flags.PrintErrors)
	if _, err := parserFlags.ParseArgs(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(opts.Args.GUIDs) > maxTrackedGUIDs {
		fmt.Fprintf(os.Stderr, "extract: at most %d GUIDs supported, got %d\n", maxTrackedGUIDs, len(opts.Args.GUIDs))
		return 1
	}

	buf, err := os.ReadFile(opts.Args.Image)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	result := parser.Parse(buf)
	if opts.Verbose {
		for _, d := range result.Diag.Entries() {
			log.Warnf("%s", d.Message)
		}
	}

	if len(opts.Args.GUIDs) == 0 {
		printTree(result.Tree)
		return 0
	}

	wanted := make([]*guid.GUID, len(opts.Args.GUIDs))
	for i, s := range opts.Args.GUIDs {
		g, err := guid.Parse(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "extract: %q: %v\n", s, err)
			return 1
		}
		wanted[i] = g
	}

	found := findByGUID(result.Tree, wanted)

	var missing int
	for i, h := range found {
		if h == item.InvalidHandle {
			missing |= 1 << uint(i)
			log.Errorf("%s: not found", wanted[i].String())
			continue
		}
		if err := extractOne(opts.OutDir, result.Tree, h, wanted[i]); err != nil {
			log.Errorf("%v", err)
			missing |= 1 << uint(i)
		}
	}
	return missing
}

// findByGUID returns, for each wanted GUID in order, the handle of the last
// File item in the tree carrying that GUID (InvalidHandle if none), matching
// the "last one wins" convention used for the Volume Top File elsewhere in
// the tree (spec.md §4.3 step 5).
func findByGUID(tree *item.Tree, wanted []*guid.GUID) []item.Handle {
	found := make([]item.Handle, len(wanted))
	_ = tree.Walk(tree.Root(), func(h item.Handle) error {
		it := tree.Item(h)
		if it.Kind != item.KindFile || it.ParsingData.File == nil {
			return nil
		}
		for i, g := range wanted {
			if it.ParsingData.File.GUID == *g {
				found[i] = h
			}
		}
		return nil
	})
	return found
}

func extractOne(outDir string, tree *item.Tree, h item.Handle, g *guid.GUID) error {
	it := tree.Item(h)
	name := filepath.Join(outDir, g.String()+".ffs")
	if err := os.WriteFile(name, it.Body, 0o644); err != nil {
		return fmt.Errorf("extract %s: %w", g.String(), err)
	}
	fmt.Printf("%s -> %s (%s)\n", g.String(), name, humanize.Bytes(it.Size()))
	return nil
}

func printTree(tree *item.Tree) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Offset", "Kind", "Name", "Text", "Size"})
	var walk func(h item.Handle, depth int)
	walk = func(h item.Handle, depth int) {
		it := tree.Item(h)
		if h != tree.Root() {
			indent := ""
			for i := 0; i < depth; i++ {
				indent += "  "
			}
			t.AppendRow(table.Row{
				fmt.Sprintf("0x%X", it.Offset),
				it.Kind.String(),
				indent + it.Name,
				it.Text,
				humanize.Bytes(it.Size()),
			})
		}
		for i := 0; i < it.RowCount(); i++ {
			walk(it.ChildHandle(i), depth+1)
		}
	}
	walk(tree.Root(), -1)
	t.Render()
}
