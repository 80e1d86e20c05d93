package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/beefci/internal/doctor"
	"github.com/mattjoyce/beefci/internal/filter"
	"github.com/mattjoyce/beefci/internal/history"
	"github.com/mattjoyce/beefci/internal/log"
	"github.com/mattjoyce/beefci/internal/storage"
	"github.com/mattjoyce/beefci/internal/workflow"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const defaultHistoryPath = ".beefci/history.db"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	switch cliArgs[0] {
	case "check":
		return runCheck(cliArgs[1:])
	case "history":
		return runHistory(cliArgs[1:])
	case "version", "--version":
		return runVersion(cliArgs[1:])
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	}
	return runEvaluate(cliArgs)
}

func printUsage(w *os.File) {
	fmt.Fprint(w, `beefci - report which CircleCI workflow jobs run for a branch or tag

Usage:
  beefci [flags] <file> [branch] [tag]
  beefci check [--json] <file>
  beefci history [--db PATH] [--limit N] [--id RUN_ID] [--json]
  beefci version [--json]

Evaluation flags:
  --json            Output the result, with per-job decisions, as JSON
  --color           Style the report for a terminal
  --dedupe          List each job at most once per workflow
  --record PATH     Append the result to a SQLite history database
  --log-level LVL   debug, info, warn or error (default: warn)

Flags must come before <file>. Branch and tag names may not start with "-".
`)
}

func runEvaluate(args []string) int {
	var jsonOut, color, dedupe bool
	var recordPath, logLevel string

	fs := flag.NewFlagSet("beefci", flag.ContinueOnError)
	fs.BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	fs.BoolVar(&color, "color", false, "Style the report for a terminal")
	fs.BoolVar(&dedupe, "dedupe", false, "List each job at most once per workflow")
	fs.StringVar(&recordPath, "record", "", "Append the result to this SQLite history database")
	fs.StringVar(&logLevel, "log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	log.Setup(logLevel)

	pos := fs.Args()
	if len(pos) < 1 || len(pos) > 3 {
		fmt.Fprintln(os.Stderr, "Usage: beefci [flags] <file> [branch] [tag]")
		return 1
	}
	for _, arg := range pos {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: unexpected flag %q after <file>; flags must come before <file>\n", arg)
			fmt.Fprintln(os.Stderr, "Usage: beefci [flags] <file> [branch] [tag]")
			return 1
		}
	}
	path := pos[0]
	in := filter.Input{}
	if len(pos) > 1 {
		in.Branch = pos[1]
	}
	if len(pos) > 2 {
		in.Tag = pos[2]
	}

	log.Debug("evaluating definition", "path", path, "branch", in.Branch, "tag", in.Tag, "dedupe", dedupe)
	res, err := filter.Run(path, in, filter.Options{Dedupe: dedupe})
	if err != nil {
		log.Error("evaluation failed", "path", path, "error", err.Error(), "kind", errorKind(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch {
	case jsonOut:
		err = filter.WriteJSON(os.Stdout, res)
	case color:
		err = filter.WriteStyled(os.Stdout, res)
	default:
		err = filter.WriteText(os.Stdout, res)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		return 1
	}

	if recordPath != "" {
		if err := recordRun(recordPath, path, res); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to record run: %v\n", err)
			return 1
		}
	}
	return 0
}

// errorKind names the failure class for structured logs.
func errorKind(err error) string {
	var (
		readErr      *workflow.ReadError
		parseErr     *workflow.ParseError
		malformedErr *workflow.MalformedWorkflowError
		patternErr   *workflow.PatternError
	)
	switch {
	case errors.As(err, &readErr):
		return "read"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &malformedErr):
		return "malformed_workflow"
	case errors.As(err, &patternErr):
		return "pattern"
	default:
		return "unknown"
	}
}

func recordRun(dbPath, configPath string, res *filter.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	run, err := history.NewStore(db).Record(ctx, configPath, res)
	if err != nil {
		return err
	}
	log.WithRun(run.ID).Info("evaluation recorded", "db", dbPath, "jobs", run.JobCount)
	return nil
}

func runCheck(args []string) int {
	var jsonOut bool
	var logLevel string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.BoolVar(&jsonOut, "json", false, "Output the validation result as JSON")
	fs.StringVar(&logLevel, "log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	log.Setup(logLevel)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: beefci check [--json] <file>")
		return 1
	}
	path := fs.Arg(0)

	var result *doctor.Result
	def, err := workflow.LoadFile(path)
	if err != nil {
		log.WithComponent("doctor").Debug("definition failed to load", "path", path, "error", err.Error())
		result = doctor.LoadFailure(err)
	} else {
		result = doctor.New(def).Validate()
		if len(result.Warnings) > 0 {
			log.Warn("definition has warnings", "path", path, "count", len(result.Warnings))
		}
	}

	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runHistory(args []string) int {
	var dbPath, runID, logLevel string
	var limit int
	var jsonOut bool

	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.StringVar(&dbPath, "db", defaultHistoryPath, "Path to the SQLite history database")
	fs.IntVar(&limit, "limit", history.DefaultListLimit, "Maximum number of runs to list")
	fs.StringVar(&runID, "id", "", "Show a single run")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	fs.StringVar(&logLevel, "log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	log.Setup(logLevel)

	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: beefci history [--db PATH] [--limit N] [--id RUN_ID] [--json]")
		return 1
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "History database %s not available: %v\n", dbPath, err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	store := history.NewStore(db)

	if runID != "" {
		run, err := store.Get(ctx, runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load run %s: %v\n", runID, err)
			return 1
		}
		if jsonOut {
			return printJSON(run)
		}
		var res filter.Result
		if err := json.Unmarshal(run.Result, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Stored result for run %s is invalid: %v\n", runID, err)
			return 1
		}
		printRunHeader(*run)
		if err := filter.WriteText(os.Stdout, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			return 1
		}
		return 0
	}

	runs, err := store.List(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}
	if jsonOut {
		if runs == nil {
			runs = []history.Run{}
		}
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return 0
	}
	for _, run := range runs {
		printRunHeader(run)
	}
	return 0
}

func printRunHeader(run history.Run) {
	fmt.Printf("%s  %s  branch=%q tag=%q jobs=%d  %s\n",
		run.ID,
		run.CreatedAt.Format(time.RFC3339),
		run.Branch,
		run.Tag,
		run.JobCount,
		run.ConfigPath,
	)
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: beefci version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		return printJSON(info)
	}

	fmt.Printf("beefci %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}
