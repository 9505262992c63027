// Command mavlint loads a dialect directory and reports issues Load itself
// accepts without failing: messages with no fields, v1 incompatible ids,
// and enums with duplicate entry values. Shaped after
// the teacher's tools/rat-gen.go subcommand/flag layout (run(args, stdout,
// stderr) int, a flag.FlagSet per subcommand), generalized from a C-struct
// sync tool to a MAVLink dialect linter.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"mavgo/pkg/schema"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "lint":
		return runLint(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runLint(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dir := fs.String("dir", "dialects/common", "directory of *.xml dialect files")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	registry, err := schema.Load(filepath.Join(*dir, "*.xml"))
	if err != nil {
		fmt.Fprintln(stderr, "load failed:", err)
		return 1
	}

	issues := lint(registry)
	for _, issue := range issues {
		fmt.Fprintln(stdout, issue)
	}
	fmt.Fprintf(stdout, "%d message(s), %d enum(s), %d issue(s)\n", len(registry.Messages), len(registry.Enums), len(issues))

	if len(issues) > 0 {
		return 1
	}
	return 0
}

// lint returns every issue found in registry, sorted for deterministic
// output regardless of map iteration order.
func lint(registry *schema.Registry) []string {
	var issues []string

	for name, msg := range registry.Messages {
		if len(msg.Fields) == 0 && len(msg.FieldExtensions) == 0 {
			issues = append(issues, fmt.Sprintf("message %s (id %d): no fields", name, msg.ID))
		}
		if !msg.IsV1Compatible() {
			issues = append(issues, fmt.Sprintf("message %s: id %d exceeds v1's 8-bit msgid, v1-incompatible", name, msg.ID))
		}
	}

	for name, enum := range registry.Enums {
		seen := map[int64][]string{}
		for _, entry := range enum.Entries {
			seen[entry.Value] = append(seen[entry.Value], entry.Name)
		}
		var values []int64
		for v := range seen {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		for _, v := range values {
			if len(seen[v]) > 1 {
				issues = append(issues, fmt.Sprintf("enum %s: value %d shared by %v", name, v, seen[v]))
			}
		}
	}

	sort.Strings(issues)
	return issues
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mavlint lint [--dir dialects/common]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  lint   load a dialect directory and report schema issues")
}
