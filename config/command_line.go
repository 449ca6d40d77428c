package config

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrHelp is returned by ParseArgs when the option list was requested.
var ErrHelp = errors.New("help requested")

// ParseArgs applies command line switches to the configuration. args excludes the program name.
func (c *Config) ParseArgs(args []string) error {
	for _, arg := range args {
		switch arg {
		case "--validation":
			c.EnableValidation = true
			if len(c.ValidationLayers) == 0 {
				c.ValidationLayers = []string{ValidationLayer}
			}
		case "--no-validation":
			c.EnableValidation = false
		case "--help", "-h":
			return ErrHelp
		default:
			return errors.Newf("unrecognized option: %s", arg)
		}
	}

	return nil
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "\nOptions")
	fmt.Fprintln(w, "\t--validation")
	fmt.Fprintln(w, "\t\tEnable the Khronos validation layer")
	fmt.Fprintln(w, "\t--no-validation")
	fmt.Fprintln(w, "\t\tRun without validation layers")
	fmt.Fprintf(w, "\nSettings are read from %s next to the executable.\n", FileName)
}
