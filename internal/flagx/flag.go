// Package flagx contains helpers for parsing a subset of the command line
// without colliding with flags owned by other packages.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args containing only the flags in keep
// and their values. Both "-f value" and "-f=value" forms are recognized;
// everything else, including the test binary's own flags, is dropped.
func FilterArgs(args []string, keep []string) []string {
	known := make(map[string]bool, len(keep))
	for _, name := range keep {
		known[name] = true
	}

	var kept []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if eq := strings.IndexByte(arg, '='); strings.HasPrefix(arg, "-") && eq >= 0 {
			if known[arg[:eq]] {
				kept = append(kept, arg)
			}
			continue
		}

		if !known[arg] {
			continue
		}
		kept = append(kept, arg)
		// the next token is this flag's value unless it is a flag itself
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			kept = append(kept, args[i+1])
			i++
		}
	}
	return kept
}

// JsonConfigFlags extracts the config file path given via -c or -config,
// returning an empty string when neither is present.
func JsonConfigFlags() string {
	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("config-path", flag.ContinueOnError)
	var path string
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(args)

	return path
}
