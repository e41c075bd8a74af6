package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/antiplagiat/textcheck/internal/api"
	"github.com/antiplagiat/textcheck/internal/lifecycle"
	"github.com/antiplagiat/textcheck/internal/models"
	"github.com/antiplagiat/textcheck/internal/remote"
	"github.com/antiplagiat/textcheck/internal/report"
	"github.com/antiplagiat/textcheck/internal/request"
	"github.com/rs/zerolog/log"
)

// outputFlags selects how a report is written.
type outputFlags struct {
	json bool
	html string
	pdf  string
}

func (o *outputFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&o.json, "json", false, "print the report as JSON")
	fs.StringVar(&o.html, "html", "", "also write an HTML report to this file")
	fs.StringVar(&o.pdf, "pdf", "", "also write a PDF report to this file")
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) cmdCheck(args []string) int {
	fs := a.flagSet("check")
	file := fs.String("file", "", `read the text from a file ("-" for stdin)`)
	mode := fs.String("mode", "", "analysis mode: fast or deep")
	lang := fs.String("lang", "", "text language: ru, en, kk or auto")
	quotes := fs.String("exclude-quotes", "", "exclude quoted passages (true/false)")
	bib := fs.String("exclude-bibliography", "", "exclude the bibliography (true/false)")
	noWait := fs.Bool("no-wait", false, "submit only and print the task id")
	var out outputFlags
	out.register(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	opts := request.Options{}
	if *mode != "" {
		m := models.Mode(*mode)
		opts.Mode = &m
	}
	if *lang != "" {
		l := models.Lang(*lang)
		opts.Lang = &l
	}
	var err error
	if opts.ExcludeQuotes, err = parseOptionalBool(*quotes); err != nil {
		fmt.Fprintf(a.stderr, "Error: -exclude-quotes: %v\n", err)
		return exitUsage
	}
	if opts.ExcludeBibliography, err = parseOptionalBool(*bib); err != nil {
		fmt.Fprintf(a.stderr, "Error: -exclude-bibliography: %v\n", err)
		return exitUsage
	}

	text, err := readText(fs.Args(), *file, a.stdin)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: failed to read text: %v\n", err)
		return exitFailure
	}

	ctx, stop := signalContext()
	defer stop()

	l := a.newLifecycle()
	defer context.AfterFunc(ctx, l.Close)()

	fmt.Fprintf(a.stderr, "Submitting %d characters, %d words...\n", request.CountChars(text), request.CountWords(text))
	task, err := l.Submit(ctx, text, opts)
	if err != nil {
		return a.reportError(err)
	}
	a.history.RememberPreview(task.TaskID, l.Text())
	if *noWait {
		fmt.Fprintln(a.stdout, task.TaskID)
		return exitOK
	}
	fmt.Fprintf(a.stderr, "Task %s submitted, waiting for the report...\n", task.TaskID)

	result, err := l.Fetch(ctx, "")
	if err != nil {
		return a.reportError(err)
	}
	return a.writeReport(report.Derive(result), result, text, out)
}

func (a *app) cmdReport(args []string) int {
	fs := a.flagSet("report")
	var out outputFlags
	out.register(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "Usage: textcheck report [flags] <task-id>")
		return exitUsage
	}

	ctx, stop := signalContext()
	defer stop()

	id := fs.Arg(0)
	l := a.newLifecycle(lifecycle.WithPreview(a.history.PendingPreview(id)))
	defer context.AfterFunc(ctx, l.Close)()

	result, err := l.Fetch(ctx, id)
	if err != nil {
		return a.reportError(err)
	}
	return a.writeReport(report.Derive(result), result, "", out)
}

func (a *app) cmdHistory(args []string) int {
	fs := a.flagSet("history")
	clearAll := fs.Bool("clear", false, "remove all entries")
	remove := fs.String("remove", "", "remove the entry for a task id")
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	switch {
	case *clearAll:
		a.history.Clear()
		fmt.Fprintln(a.stdout, "History cleared")
		return exitOK
	case *remove != "":
		a.history.Remove(*remove)
		fmt.Fprintf(a.stdout, "Removed %s\n", *remove)
		return exitOK
	}

	items := a.history.List()
	if *asJSON {
		return a.printJSON(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(a.stdout, "No checks yet")
		return exitOK
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tORIGINALITY\tCHECKED\tPREVIEW")
	for _, h := range items {
		checked := "-"
		if !h.CreatedAt.IsZero() {
			checked = h.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%.1f%%\t%s\t%s\n", h.TaskID, h.Originality, checked, oneLine(h.Preview))
	}
	tw.Flush()
	return exitOK
}

func (a *app) cmdSources(args []string) int {
	fs := a.flagSet("sources")
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, stop := signalContext()
	defer stop()

	catalog, err := a.client.ListSources(ctx)
	if err != nil {
		return a.reportError(err)
	}
	if *asJSON {
		return a.printJSON(catalog)
	}

	fmt.Fprintf(a.stdout, "%d sources\n", catalog.Total)
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, s := range catalog.Sources {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.ID, s.Title, s.URL)
	}
	tw.Flush()
	return exitOK
}

func (a *app) cmdHealth(args []string) int {
	fs := a.flagSet("health")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, stop := signalContext()
	defer stop()

	health, err := a.client.HealthCheck(ctx)
	if err != nil {
		return a.reportError(err)
	}
	fmt.Fprintf(a.stdout, "Service:   %s\n", a.client.BaseURL())
	fmt.Fprintf(a.stdout, "Status:    %s\n", health.Status)
	fmt.Fprintf(a.stdout, "AI:        %t\n", health.AIEnabled)
	fmt.Fprintf(a.stdout, "In memory: %d checks\n", health.ChecksInMemory)
	return exitOK
}

func (a *app) cmdDelete(args []string) int {
	fs := a.flagSet("delete")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "Usage: textcheck delete <task-id>")
		return exitUsage
	}
	id := fs.Arg(0)

	ctx, stop := signalContext()
	defer stop()

	if err := a.client.DeleteCheck(ctx, id); err != nil {
		if remote.IsNotFound(err) {
			a.history.Remove(id)
		}
		return a.reportError(err)
	}
	a.history.Remove(id)
	fmt.Fprintf(a.stdout, "Deleted %s\n", id)
	return exitOK
}

func (a *app) cmdServe(args []string) int {
	fs := a.flagSet("serve")
	port := fs.Int("port", a.cfg.Server.Port, "listen port")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	handler := api.NewHandler(a.client, a.builder, a.history, a.pdf, a.lcOpts...)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(*port),
		Handler:           api.NewRouter(a.cfg, handler, a.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("upstream", a.client.BaseURL()).Msg("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			log.Error().Err(err).Msg("Server failed")
			return exitFailure
		}
		return exitOK
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return exitFailure
	}
	return exitOK
}

// reportError prints a core error and returns the matching exit code.
func (a *app) reportError(err error) int {
	if errors.Is(err, lifecycle.ErrAbandoned) {
		fmt.Fprintln(a.stderr, "Check abandoned")
		return exitFailure
	}

	var verr *request.ValidationError
	if errors.As(err, &verr) {
		switch verr.Reason {
		case request.ReasonTooShort:
			fmt.Fprintf(a.stderr, "Text too short: %d characters, at least %d needed (%d more)\n",
				verr.Length, request.MinChars, verr.Shortfall)
		default:
			fmt.Fprintf(a.stderr, "Invalid input: %v\n", verr)
		}
		return exitValidation
	}

	var rerr *remote.Error
	var f *lifecycle.Failure
	switch {
	case errors.As(err, &rerr):
		fmt.Fprintf(a.stderr, "Error: %s\n", rerr.Message)
		if rerr.Kind == remote.KindNotFound {
			fmt.Fprintln(a.stderr, "Start a new check with: textcheck check")
		}
	case errors.As(err, &f) && f.Kind == lifecycle.FailTimeout:
		fmt.Fprintln(a.stderr, "Error: the check is taking too long, try `textcheck report` later")
	default:
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}
	return exitFailure
}

func (a *app) writeReport(view *report.View, result *models.CheckResult, text string, out outputFlags) int {
	if out.html != "" {
		var buf bytes.Buffer
		if err := report.RenderHTML(&buf, view, text); err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			return exitFailure
		}
		if err := os.WriteFile(out.html, buf.Bytes(), 0644); err != nil {
			fmt.Fprintf(a.stderr, "Error: failed to write %s: %v\n", out.html, err)
			return exitFailure
		}
	}
	if out.pdf != "" {
		data, err := report.RenderPDF(view, a.pdf)
		if err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			return exitFailure
		}
		if err := os.WriteFile(out.pdf, data, 0644); err != nil {
			fmt.Fprintf(a.stderr, "Error: failed to write %s: %v\n", out.pdf, err)
			return exitFailure
		}
	}

	if out.json {
		return a.printJSON(view)
	}
	printSummary(a.stdout, view, result)
	return exitOK
}

func (a *app) printJSON(v interface{}) int {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func parseOptionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
