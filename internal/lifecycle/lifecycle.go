// Package lifecycle drives one check from raw text to a finished report.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antiplagiat/textcheck/internal/history"
	"github.com/antiplagiat/textcheck/internal/models"
	"github.com/antiplagiat/textcheck/internal/remote"
	"github.com/antiplagiat/textcheck/internal/request"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is a lifecycle phase.
type State string

const (
	Idle           State = "idle"
	Validating     State = "validating"
	Submitting     State = "submitting"
	Submitted      State = "submitted"
	FetchingResult State = "fetching_result"
	Running        State = "running"
	ReportReady    State = "report_ready"
	Failed         State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == ReportReady || s == Failed
}

// FailureKind classifies why a lifecycle failed.
type FailureKind string

const (
	FailValidation FailureKind = "validation"
	FailRemote     FailureKind = "remote"
	FailNotFound   FailureKind = "not_found"
	FailTimeout    FailureKind = "timeout"
)

// Failure is the error a lifecycle ends with when it enters Failed.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

var (
	// ErrBusy is returned when a call arrives while another one is still pending.
	ErrBusy = errors.New("check already in progress")
	// ErrTerminal is returned once the lifecycle has reached ReportReady or Failed.
	ErrTerminal = errors.New("check already finished")
	// ErrAbandoned is returned for calls cut short or completed after Close.
	ErrAbandoned = errors.New("check abandoned")
	// ErrInvalidState is returned when an operation is not allowed from the current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrAnalysisFailed is the cause recorded when the backend reports a failed task.
	ErrAnalysisFailed = errors.New("analysis failed on the check service")
)

// Service is the part of the remote client a lifecycle needs.
type Service interface {
	SubmitCheck(ctx context.Context, req *models.CheckRequest) (*models.SubmitResponse, error)
	FetchResult(ctx context.Context, taskID string) (*models.CheckResult, error)
}

// Recorder receives the summary of a completed check.
type Recorder interface {
	Record(item models.HistoryItem)
}

// Transition describes one state change.
type Transition struct {
	LifecycleID string
	From        State
	To          State
	TaskID      string
	Failure     *Failure
	At          time.Time
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithBuilder sets the request builder used by Submit.
func WithBuilder(b *request.Builder) Option {
	return func(l *Lifecycle) {
		if b != nil {
			l.builder = b
		}
	}
}

// WithHistory sets where completed checks are recorded.
func WithHistory(r Recorder) Option {
	return func(l *Lifecycle) {
		l.history = r
	}
}

// WithPolling enables polling while the backend reports a pending task.
// Attempts counts fetch calls, including the first one.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(l *Lifecycle) {
		l.pollInterval = interval
		if attempts < 1 {
			attempts = 1
		}
		l.maxAttempts = attempts
	}
}

// WithPreview sets the history preview used when the text was submitted by another instance.
func WithPreview(preview string) Option {
	return func(l *Lifecycle) {
		l.preview = preview
	}
}

// WithCallTimeout bounds every network call. Zero means no timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(l *Lifecycle) {
		l.callTimeout = d
	}
}

// WithObserver registers fn to be called after every transition.
// fn runs under the lifecycle lock and must not call back into it.
func WithObserver(fn func(Transition)) Option {
	return func(l *Lifecycle) {
		if fn != nil {
			l.observers = append(l.observers, fn)
		}
	}
}

// WithMetrics counts finished lifecycles.
func WithMetrics(m *Metrics) Option {
	return func(l *Lifecycle) {
		l.metrics = m
	}
}

// Lifecycle owns one check. It is safe for concurrent use, but its phases never overlap:
// Submit must resolve before Fetch starts.
type Lifecycle struct {
	id      string
	service Service
	builder *request.Builder
	history Recorder
	metrics *Metrics

	pollInterval time.Duration
	maxAttempts  int
	callTimeout  time.Duration
	observers    []func(Transition)

	mu      sync.Mutex
	state   State
	busy    bool
	closed  bool
	cancel  context.CancelFunc
	text    string
	preview string
	task    *models.CheckTask
	result  *models.CheckResult
	failure *Failure
}

// New creates a lifecycle in Idle.
func New(service Service, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		id:          uuid.New().String(),
		service:     service,
		builder:     request.NewBuilder(request.Defaults()),
		maxAttempts: 1,
		state:       Idle,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ID returns the lifecycle instance identifier.
func (l *Lifecycle) ID() string {
	return l.id
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Task returns the submitted task, or nil before a successful Submit.
func (l *Lifecycle) Task() *models.CheckTask {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.task == nil {
		return nil
	}
	t := *l.task
	return &t
}

// Result returns the report once the lifecycle is ReportReady.
func (l *Lifecycle) Result() *models.CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// Text returns the validated text after Submit, or "" for a hand-off lifecycle.
func (l *Lifecycle) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// Failure returns why the lifecycle failed, or nil.
func (l *Lifecycle) Failure() *Failure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failure
}

// Submit validates rawText and submits it. Validation errors never reach the network.
func (l *Lifecycle) Submit(ctx context.Context, rawText string, opts request.Options) (*models.CheckTask, error) {
	l.mu.Lock()
	if err := l.beginLocked(Idle); err != nil {
		l.mu.Unlock()
		return nil, err
	}

	l.transitionLocked(Validating)
	req, err := l.builder.Build(rawText, opts)
	if err != nil {
		l.busy = false
		f := l.failLocked(FailValidation, err)
		l.mu.Unlock()
		return nil, f
	}
	l.text = req.Text

	l.transitionLocked(Submitting)
	callCtx, done := l.callContextLocked(ctx)
	l.mu.Unlock()

	resp, err := l.service.SubmitCheck(callCtx, req)
	done()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.busy = false
	if l.closed {
		return nil, ErrAbandoned
	}
	if err != nil {
		return nil, l.failLocked(classify(err), err)
	}

	l.task = &models.CheckTask{
		TaskID:               resp.TaskID,
		Status:               models.ParseTaskStatus(resp.Status),
		SubmittedAt:          time.Now().UTC(),
		EstimatedTimeSeconds: resp.EstimatedTimeSeconds,
	}
	l.transitionLocked(Submitted)

	t := *l.task
	return &t, nil
}

// Fetch retrieves the report for taskID. From Submitted an empty taskID means the submitted task.
// From Idle the lifecycle adopts taskID as a hand-off from another instance.
func (l *Lifecycle) Fetch(ctx context.Context, taskID string) (*models.CheckResult, error) {
	l.mu.Lock()
	if err := l.beginLocked(Idle, Submitted); err != nil {
		l.mu.Unlock()
		return nil, err
	}

	switch {
	case l.state == Submitted && taskID == "":
		taskID = l.task.TaskID
	case l.state == Submitted && taskID != l.task.TaskID:
		l.busy = false
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: lifecycle owns task %s", ErrInvalidState, l.task.TaskID)
	case taskID == "":
		l.busy = false
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: no task to fetch", ErrInvalidState)
	}
	if l.task == nil {
		l.task = &models.CheckTask{TaskID: taskID, Status: models.TaskQueued}
	}
	l.transitionLocked(FetchingResult)
	l.mu.Unlock()

	for attempt := 1; ; attempt++ {
		l.mu.Lock()
		callCtx, done := l.callContextLocked(ctx)
		l.mu.Unlock()

		result, err := l.service.FetchResult(callCtx, taskID)
		done()

		l.mu.Lock()
		if l.closed {
			l.busy = false
			l.mu.Unlock()
			return nil, ErrAbandoned
		}
		if err != nil {
			f := l.failLocked(classify(err), err)
			l.busy = false
			l.mu.Unlock()
			return nil, f
		}

		status := result.TaskStatus()
		l.task.Status = status
		switch status {
		case models.TaskReady:
			l.result = result
			l.transitionLocked(ReportReady)
			l.busy = false
			item := l.historyItemLocked(result)
			l.mu.Unlock()
			if l.history != nil {
				l.history.Record(item)
			}
			return result, nil
		case models.TaskFailed:
			f := l.failLocked(FailRemote, ErrAnalysisFailed)
			l.busy = false
			l.mu.Unlock()
			return nil, f
		}

		if attempt >= l.maxAttempts {
			f := l.failLocked(FailTimeout, fmt.Errorf("task %s still %s after %d attempts", taskID, status, attempt))
			l.busy = false
			l.mu.Unlock()
			return nil, f
		}
		if l.state != Running {
			l.transitionLocked(Running)
		}
		waitCtx, stop := l.callContextLocked(ctx)
		l.mu.Unlock()

		err = wait(waitCtx, l.pollInterval)
		stop()
		if err != nil {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.busy = false
			if l.closed {
				return nil, ErrAbandoned
			}
			return nil, l.failLocked(classify(err), err)
		}
	}
}

// Run submits rawText and fetches its report on the same instance.
func (l *Lifecycle) Run(ctx context.Context, rawText string, opts request.Options) (*models.CheckResult, error) {
	if _, err := l.Submit(ctx, rawText, opts); err != nil {
		return nil, err
	}
	return l.Fetch(ctx, "")
}

// Close abandons any pending call. Responses arriving afterwards cause no transition.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	log.Debug().Str("lifecycle_id", l.id).Str("state", string(l.state)).Msg("Check abandoned")
}

func (l *Lifecycle) beginLocked(allowed ...State) error {
	if l.closed {
		return ErrAbandoned
	}
	if l.busy {
		return ErrBusy
	}
	if l.state.Terminal() {
		return ErrTerminal
	}
	for _, s := range allowed {
		if l.state == s {
			l.busy = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, l.state)
}

// callContextLocked derives the context for one network call or poll wait.
// Close cancels it through l.cancel.
func (l *Lifecycle) callContextLocked(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	if l.callTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, l.callTimeout)
		inner := cancel
		cancel = func() {
			timeoutCancel()
			inner()
		}
	}
	l.cancel = cancel
	return ctx, func() {
		cancel()
		l.mu.Lock()
		l.cancel = nil
		l.mu.Unlock()
	}
}

func (l *Lifecycle) failLocked(kind FailureKind, err error) *Failure {
	f := &Failure{Kind: kind, Err: err}
	l.failure = f
	l.transitionLocked(Failed)
	return f
}

func (l *Lifecycle) transitionLocked(to State) {
	from := l.state
	l.state = to

	tr := Transition{LifecycleID: l.id, From: from, To: to, At: time.Now().UTC()}
	if l.task != nil {
		tr.TaskID = l.task.TaskID
	}
	if to == Failed {
		tr.Failure = l.failure
	}

	event := log.Debug()
	if to.Terminal() {
		event = log.Info()
	}
	event = event.Str("lifecycle_id", l.id).Str("from", string(from)).Str("to", string(to))
	if tr.TaskID != "" {
		event = event.Str("task_id", tr.TaskID)
	}
	if tr.Failure != nil {
		event = event.Str("failure", string(tr.Failure.Kind)).Err(tr.Failure.Err)
	}
	event.Msg("Check state changed")

	if to.Terminal() {
		l.metrics.finished(to, tr.Failure)
	}
	for _, fn := range l.observers {
		fn(tr)
	}
}

func (l *Lifecycle) historyItemLocked(result *models.CheckResult) models.HistoryItem {
	var preview string
	switch {
	case l.text != "":
		preview = history.Preview(l.text)
	case l.preview != "":
		preview = l.preview
	case len(result.Matches) > 0:
		preview = history.Preview(result.Matches[0].Text)
	}
	created := result.CreatedAt
	if created.IsZero() {
		created = models.NewTimestamp(time.Now())
	}
	return models.HistoryItem{
		TaskID:      result.TaskID,
		Originality: result.Originality,
		CreatedAt:   created,
		Preview:     preview,
	}
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailTimeout
	case remote.IsNotFound(err):
		return FailNotFound
	default:
		return FailRemote
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
