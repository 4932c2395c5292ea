package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	sawctl "github.com/sawfishwm/sawctl"
	"github.com/sawfishwm/sawctl/internal/logging"
)

const usage = `usage: %s [--config=<path>] [--display=<disp>] (-q | -Q | <form> | -)... [-f <func> <arg>...]
Options:
  -q --quiet         Don't wait for server response after sending a form.
  -Q --no-quiet      Wait for a response after sending a form.
  -  --stdin         Read form from standard input until EOF.
  -f --func          Send ` + "`(<func> <arg>...)`" + ` form for evaluation.
  --display=<disp>   Connect to <disp> instead of $DISPLAY.
  --config=<path>    Load defaults from a TOML config file.
  <form>             Send <form> for evaluation.
`

func main() {
	logging.ConfigureRuntime()
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	argv0 := args[0]

	var cfg cliConfig
	if path := os.Getenv("SAWCTL_CONFIG"); path != "" {
		var err error
		if cfg, err = loadCLIConfig(path); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", argv0, err)
			return 1
		}
	}
	if cfg.LogLevel != "" {
		logging.SetLevel(cfg.LogLevel)
	}

	ev := &evaluator{argv0: argv0, display: cfg.Display, stdout: stdout, stderr: stderr}
	defer ev.close()

	quiet := cfg.Quiet
	found := false
	dashDash := false
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case dashDash || !strings.HasPrefix(arg, "-"):
			found = true
			if !ev.eval([]byte(arg), quiet) {
				return 1
			}
		case arg == "-h" || arg == "--help":
			fmt.Fprintf(stdout, usage, argv0)
			return 0
		case arg == "-q" || arg == "--quiet":
			quiet = true
		case arg == "-Q" || arg == "--no-quiet":
			quiet = false
		case arg == "-" || arg == "--stdin":
			found = true
			form, err := io.ReadAll(stdin)
			if err != nil {
				fmt.Fprintf(stderr, "%s: %v\n", argv0, err)
				continue
			}
			if len(form) == 0 {
				continue
			}
			if !ev.eval(form, quiet) {
				return 1
			}
		case arg == "--":
			dashDash = true
		case strings.HasPrefix(arg, "--display="):
			ev.display = strings.TrimPrefix(arg, "--display=")
		case strings.HasPrefix(arg, "--config="):
			c, err := loadCLIConfig(strings.TrimPrefix(arg, "--config="))
			if err != nil {
				fmt.Fprintf(stderr, "%s: %v\n", argv0, err)
				return 1
			}
			if c.Display != "" {
				ev.display = c.Display
			}
			quiet = c.Quiet
			if c.LogLevel != "" {
				logging.SetLevel(c.LogLevel)
			}
		case isFuncArg(arg):
			found = true
			form := buildForm(funcArgName(arg), rest[i+1:])
			if form == nil {
				fmt.Fprintf(stderr, "%s: -f requires an argument\n", argv0)
				return 1
			}
			if !ev.eval(form, quiet) {
				return 1
			}
			i = len(rest)
		default:
			fmt.Fprintf(stderr, "%s: unknown argument: %s\n", argv0, arg)
			return 1
		}
	}

	if !found {
		fmt.Fprintf(stdout, usage, argv0)
	}
	return 0
}

// evaluator sends forms over a lazily opened connection. Options like
// --display only matter if they precede the first form.
type evaluator struct {
	argv0   string
	display string
	client  *sawctl.Client
	stdout  io.Writer
	stderr  io.Writer
}

// eval sends one form, echoing the exchange. The returned bool reports
// whether a connection is available; evaluation failures after a
// successful open are printed but do not stop the run.
func (e *evaluator) eval(form []byte, quiet bool) bool {
	if e.client == nil {
		c, err := sawctl.Open(e.display)
		if err != nil {
			fmt.Fprintf(e.stderr, "%s: %v\n", e.argv0, err)
			return false
		}
		e.client = c
	}
	fmt.Fprintf(e.stdout, "> %s\n", form)
	if quiet {
		if err := e.client.Send(form); err != nil {
			fmt.Fprintf(e.stderr, "%s: %v\n", e.argv0, err)
		}
		return true
	}
	resp, err := e.client.Eval(form)
	if err != nil {
		fmt.Fprintf(e.stderr, "%s: %v\n", e.argv0, err)
		return true
	}
	marker := "<"
	if !resp.OK {
		marker = "!"
	}
	fmt.Fprintf(e.stdout, "%s %s\n", marker, resp.Data)
	return true
}

func (e *evaluator) close() {
	if e.client != nil {
		e.client.Close()
	}
}

// isFuncArg reports whether arg is the -f/--func switch, possibly with
// the function name attached (-fsystem-name, --func=system-name).
func isFuncArg(arg string) bool {
	return arg == "-f" || arg == "--func" ||
		strings.HasPrefix(arg, "-f") && !strings.HasPrefix(arg, "--") ||
		strings.HasPrefix(arg, "--func=")
}

// funcArgName extracts the attached function name, if any.
func funcArgName(arg string) string {
	if arg == "-f" || arg == "--func" {
		return ""
	}
	if name, ok := strings.CutPrefix(arg, "--func="); ok {
		return name
	}
	return strings.TrimPrefix(arg, "-f")
}

// buildForm assembles `(<func> <arg>...)` from the -f switch and the
// remaining arguments. With a bare -f the function name is the first
// remaining argument. Returns nil when there is nothing to call.
func buildForm(funcName string, args []string) []byte {
	parts := args
	if funcName != "" {
		parts = append([]string{funcName}, args...)
	}
	form := "(" + strings.Join(parts, " ") + ")"
	if len(form) <= 2 {
		return nil
	}
	return []byte(form)
}
