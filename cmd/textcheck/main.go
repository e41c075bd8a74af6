// Command textcheck submits texts to the plagiarism check service, shows reports and
// serves a local HTTP gateway.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/antiplagiat/textcheck/internal/config"
	"github.com/antiplagiat/textcheck/internal/logging"
	"github.com/joho/godotenv"
)

const usage = `Usage: textcheck [global flags] <command> [flags] [args]

Commands:
  check            check a text (from args, -file or stdin)
  report <id>      show the report of a submitted check
  history          list recent checks (-clear, -remove <id>)
  sources          list the service's source catalog
  health           show the service status
  delete <id>      delete a check on the service and locally
  serve            run the local HTTP gateway
  generate-config  write a sample configuration file

Global flags:
`

// exit codes
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitValidation = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("textcheck", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", os.Getenv("TEXTCHECK_CONFIG"), "path to YAML config file")
	envFile := global.String("env-file", ".env", "dotenv file to load before reading config")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return exitUsage
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return exitUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "generate-config" {
		return cmdGenerateConfig(cmdArgs, stdout, stderr)
	}

	if err := loadEnv(*envFile); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	if err := logging.Setup(cfg.Logging, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	a := newApp(cfg, stdin, stdout, stderr)
	defer a.Close()

	switch cmd {
	case "check":
		return a.cmdCheck(cmdArgs)
	case "report":
		return a.cmdReport(cmdArgs)
	case "history":
		return a.cmdHistory(cmdArgs)
	case "sources":
		return a.cmdSources(cmdArgs)
	case "health":
		return a.cmdHealth(cmdArgs)
	case "delete":
		return a.cmdDelete(cmdArgs)
	case "serve":
		return a.cmdServe(cmdArgs)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return exitUsage
	}
}

// loadEnv loads a dotenv file without overriding variables already set. A missing file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func cmdGenerateConfig(args []string, stdout, stderr io.Writer) int {
	path := "textcheck.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", path)
		return exitFailure
	}
	if err := config.GenerateSample(path); err != nil {
		fmt.Fprintf(stderr, "Error: failed to write config: %v\n", err)
		return exitFailure
	}
	fmt.Fprintf(stdout, "Wrote sample configuration to %s\n", path)
	return exitOK
}
