// Command zlines is the CLI wrapper around the internal/zlines store:
// create, details, verify, get, print, plus two verbs that exercise the
// surrounding ingestion packages, import-nexus and pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

var debug = flag.Bool("debug", false, "format error messages with additional detail")

type cmd struct {
	fn   func(ctx context.Context, args []string) error
	help string
}

func verbs() map[string]cmd {
	return map[string]cmd{
		"create":       {fn: cmdCreate, help: "create a zlines file from newline-delimited text"},
		"details":      {fn: cmdDetails, help: "print a zlines file's internal layout"},
		"verify":       {fn: cmdVerify, help: "line-by-line compare a text file against a zlines file"},
		"get":          {fn: cmdGet, help: "print selected lines by ordinal index"},
		"print":        {fn: cmdPrint, help: "print every line"},
		"import-nexus": {fn: cmdImportNexus, help: "ingest a NEXUS matrix into a zlines file, one line per taxon"},
		"pipeline":     {fn: cmdPipeline, help: "ingest many independent shards in parallel"},
	}
}

func funcmain() error {
	flag.Parse()
	args := flag.Args()

	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	v, ok := verbs()[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	if err := v.fn(ctx, rest); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "zlines [-flags] <command> [-flags] <args>\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for name, v := range verbs() {
		fmt.Fprintf(os.Stderr, "\t%-14s %s\n", name, v.help)
	}
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
