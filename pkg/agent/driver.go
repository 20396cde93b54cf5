package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"assistant/pkg/config"
	"assistant/pkg/conflict"
	"assistant/pkg/executor"
	"assistant/pkg/interaction"
	"assistant/pkg/logx"
	"assistant/pkg/metrics"
	"assistant/pkg/persistence"
	"assistant/pkg/proto"
	"assistant/pkg/scoring"
	"assistant/pkg/source"
	"assistant/pkg/state"
)

// Collaborators are the external and internal services the driver
// sequences. Checkpoints and History may be nil; the agent then runs
// without persistence.
type Collaborators struct {
	Emails       source.EmailSource
	Calendar     source.CalendarSource
	Engine       *scoring.Engine
	Detector     *conflict.Detector
	Interactions *interaction.Manager
	Executor     *executor.Executor
	Checkpoints  *state.Store
	History      *persistence.DatabaseOperations
}

// Snapshot is a consistent copy of the agent's observable state, taken at
// state-transition boundaries. Dashboard reads never see a torn mid-cycle
// value.
type Snapshot struct {
	State             proto.State              `json:"state"`
	Running           bool                     `json:"running"`
	LastCycleAt       time.Time                `json:"last_cycle_at"`
	FetchWatermark    time.Time                `json:"fetch_watermark"`
	KnownItems        int                      `json:"known_items"`
	ActiveConflicts   []proto.Conflict         `json:"active_conflicts"`
	ActiveInteraction *interaction.Interaction `json:"active_interaction,omitempty"`
	ConsecutiveErrors int                      `json:"consecutive_errors"`
}

// Driver owns the agent's state and runs the monitor loop: fetch, score,
// detect conflicts, interact, execute, repeat. One Driver per user; no two
// cycles ever overlap.
type Driver struct {
	sm     *StateMachine
	cfg    config.AgentConfig
	col    Collaborators
	logger *logx.Logger

	mu            sync.Mutex
	known         map[string]*proto.MonitoredItem
	seenIDs       map[string]bool
	handled       map[string]bool
	conflicts     []proto.Conflict
	seenConflicts map[string]bool
	watermark     time.Time
	lastCycleAt   time.Time
	errorCount    int

	runMu          sync.Mutex
	running        bool
	runCancel      context.CancelFunc
	interactCancel context.CancelFunc
	forceCh        chan struct{}
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewDriver creates a driver. It does not start the loop.
func NewDriver(cfg config.AgentConfig, col Collaborators) *Driver {
	return &Driver{
		sm:            NewStateMachine(proto.StateIdle, nil),
		cfg:           cfg,
		col:           col,
		logger:        logx.NewLogger("driver"),
		known:         make(map[string]*proto.MonitoredItem),
		seenIDs:       make(map[string]bool),
		handled:       make(map[string]bool),
		seenConflicts: make(map[string]bool),
	}
}

// Start launches the monitor loop. A second Start while running is an
// error.
func (d *Driver) Start() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running {
		return fmt.Errorf("agent already running")
	}

	d.restoreCheckpoint()

	if err := d.sm.TransitionTo(proto.StateMonitoring, "start"); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.runCancel = cancel
	d.forceCh = make(chan struct{}, 1)
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.running = true

	go d.run(ctx)
	d.logger.Info("Agent started (interval %s)", time.Duration(d.cfg.MonitorInterval))
	return nil
}

// Stop ends the loop. An in-flight interaction is abandoned, never
// executed; the call blocks until the loop goroutine exits.
func (d *Driver) Stop() {
	d.runMu.Lock()
	if !d.running {
		d.runMu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.runCancel()
	done := d.doneCh
	d.runMu.Unlock()

	<-done
	_ = d.sm.TransitionTo(proto.StateIdle, "stop")
	d.saveCheckpoint()
	d.logger.Info("Agent stopped")
}

// ForceCheck requests an immediate cycle. While a cycle is in flight the
// request is held and runs after it completes; cycles never overlap. A
// pending interaction window is cancelled and abandoned.
func (d *Driver) ForceCheck() {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		return
	}
	if d.interactCancel != nil {
		d.interactCancel()
	}
	select {
	case d.forceCh <- struct{}{}:
		d.logger.Info("Force check requested")
	default:
		// A force check is already queued.
	}
}

// Running reports whether the loop is active.
func (d *Driver) Running() bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.running
}

// GetSnapshot returns a copy of the observable agent state.
func (d *Driver) GetSnapshot() Snapshot {
	running := d.Running()

	d.mu.Lock()
	defer d.mu.Unlock()

	conflicts := make([]proto.Conflict, len(d.conflicts))
	copy(conflicts, d.conflicts)

	return Snapshot{
		State:             d.sm.Current(),
		Running:           running,
		LastCycleAt:       d.lastCycleAt,
		FetchWatermark:    d.watermark,
		KnownItems:        len(d.known),
		ActiveConflicts:   conflicts,
		ActiveInteraction: d.col.Interactions.Active(),
		ConsecutiveErrors: d.errorCount,
	}
}

// History returns the recorded state transitions.
func (d *Driver) History() []StateTransition {
	return d.sm.History()
}

// InteractionManager exposes the dialogue manager so the dashboard can
// submit replies. May be nil when the agent runs without interaction.
func (d *Driver) InteractionManager() *interaction.Manager {
	return d.col.Interactions
}

// run is the single loop goroutine. All cycle work happens here, so no two
// cycles can overlap by construction; a tick arriving mid-cycle is simply
// not seen until the select runs again, and ticker ticks that pile up are
// dropped.
func (d *Driver) run(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(time.Duration(d.cfg.MonitorInterval))
	defer ticker.Stop()

	d.cycle(ctx)

	for {
		select {
		case <-d.stopCh:
			return
		case <-d.forceCh:
			d.cycle(ctx)
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

// cycle runs one Monitoring -> Analyzing -> (Interacting -> Executing)
// pass, entering backoff on collaborator failure.
func (d *Driver) cycle(ctx context.Context) {
	start := time.Now()
	rec := persistence.CycleRecord{StartedAt: start, Outcome: "ok"}

	err := d.runPhases(ctx, &rec)

	rec.FinishedAt = time.Now()
	metrics.CycleDuration.Observe(rec.FinishedAt.Sub(start).Seconds())

	d.mu.Lock()
	d.lastCycleAt = rec.FinishedAt
	d.mu.Unlock()

	if err != nil {
		rec.Outcome = "error"
		rec.Error = err.Error()
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		d.recordCycle(rec)
		d.backoff(ctx, err)
		return
	}

	// One clean pass resets backoff escalation.
	d.mu.Lock()
	d.errorCount = 0
	d.mu.Unlock()
	metrics.ConsecutiveErrors.Set(0)
	metrics.CyclesTotal.WithLabelValues("ok").Inc()

	d.recordCycle(rec)
	d.saveCheckpoint()
	_ = d.sm.TransitionTo(proto.StateMonitoring, "cycle complete")
}

func (d *Driver) runPhases(ctx context.Context, rec *persistence.CycleRecord) error {
	_ = d.sm.TransitionTo(proto.StateMonitoring, "tick")

	newItems, err := d.monitor(ctx)
	if err != nil {
		return err
	}
	rec.NewItems = len(newItems)

	if err := d.sm.TransitionTo(proto.StateAnalyzing, "items fetched"); err != nil {
		return err
	}
	flagged, newConflict := d.analyze(ctx, newItems, rec)

	if len(flagged) == 0 && !newConflict {
		return nil
	}
	if d.col.Interactions == nil {
		return nil
	}

	return d.interact(ctx, flagged)
}

// monitor fetches new items since the watermark from both collaborators
// and ingests them idempotently. Any fetch failure aborts the cycle.
func (d *Driver) monitor(ctx context.Context) ([]*proto.MonitoredItem, error) {
	d.mu.Lock()
	since := d.watermark
	d.mu.Unlock()

	now := time.Now()
	emails, err := d.col.Emails.FetchEmails(ctx, since)
	if err != nil {
		return nil, err
	}
	events, err := d.col.Calendar.FetchEvents(ctx, now, now.Add(time.Duration(d.cfg.CalendarLookahead)))
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var newItems []*proto.MonitoredItem
	watermark := d.watermark

	for i := range emails {
		item := emails[i]
		if d.seenIDs[item.ID] {
			continue
		}
		d.seenIDs[item.ID] = true
		d.known[item.ID] = &item
		newItems = append(newItems, &item)
		if item.Email != nil && item.Email.ReceivedAt.After(watermark) {
			watermark = item.Email.ReceivedAt
		}
	}

	fetched := make(map[string]bool, len(events))
	for i := range events {
		item := events[i]
		fetched[item.ID] = true
		if existing, ok := d.known[item.ID]; ok {
			// Times or location may have moved; keep the analysis.
			existing.Event = item.Event
			continue
		}
		if d.seenIDs[item.ID] {
			continue
		}
		d.seenIDs[item.ID] = true
		d.known[item.ID] = &item
		newItems = append(newItems, &item)
	}

	// Calendar items inside the lookahead window that the provider no
	// longer returns were cancelled externally; drop them so conflicts
	// do not linger.
	for id, item := range d.known {
		if item.Source != proto.SourceCalendar || item.Event == nil || fetched[id] {
			continue
		}
		if item.Event.Start.After(now) && item.Event.Start.Before(now.Add(time.Duration(d.cfg.CalendarLookahead))) {
			delete(d.known, id)
		}
	}

	d.watermark = watermark
	return newItems, nil
}

// analyze scores the new items, recomputes conflicts over future and
// ongoing calendar items, and returns the items needing interaction.
func (d *Driver) analyze(ctx context.Context, newItems []*proto.MonitoredItem, rec *persistence.CycleRecord) (flagged []*proto.MonitoredItem, newConflict bool) {
	d.col.Engine.ScoreBatch(ctx, newItems)
	for _, item := range newItems {
		if item.Analysis != nil && item.Analysis.Fallback {
			rec.FallbackScores++
		}
	}

	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var calendar []*proto.MonitoredItem
	for _, item := range d.known {
		if item.Source == proto.SourceCalendar && item.Event != nil && item.Event.End.After(now) {
			calendar = append(calendar, item)
		}
	}
	d.conflicts = d.col.Detector.Detect(calendar, now)
	rec.Conflicts = len(d.conflicts)

	for i := range d.conflicts {
		key := d.conflicts[i].Key()
		if !d.seenConflicts[key] {
			d.seenConflicts[key] = true
			newConflict = true
			metrics.ConflictsDetected.Inc()
		}
	}

	threshold := proto.Urgency(d.cfg.InteractionThreshold)
	inConflict := make(map[string]bool)
	for i := range d.conflicts {
		for _, id := range d.conflicts[i].ItemIDs {
			inConflict[id] = true
		}
	}

	crossedThreshold := false
	for id, item := range d.known {
		if d.handled[id] {
			continue
		}
		if item.Source == proto.SourceCalendar && (item.Event == nil || !item.Event.End.After(now)) {
			continue
		}
		if item.Urgency().AtLeast(threshold) {
			crossedThreshold = true
			flagged = append(flagged, item)
		} else if inConflict[id] {
			flagged = append(flagged, item)
		}
	}

	if !crossedThreshold && !newConflict {
		// Nothing new to say; conflict members alone don't reopen a
		// dialogue that already happened.
		return nil, false
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].ID < flagged[j].ID })
	return flagged, newConflict
}

// interact runs the dialogue turn and executes an actionable answer.
func (d *Driver) interact(ctx context.Context, flagged []*proto.MonitoredItem) error {
	if err := d.sm.TransitionTo(proto.StateInteracting, "attention threshold crossed"); err != nil {
		return err
	}

	d.mu.Lock()
	conflicts := make([]proto.Conflict, len(d.conflicts))
	copy(conflicts, d.conflicts)
	d.mu.Unlock()

	// The reply window is a cancellable timer: force-check and stop both
	// abandon it without executing anything.
	ictx, cancel := context.WithCancel(ctx)
	d.runMu.Lock()
	d.interactCancel = cancel
	d.runMu.Unlock()
	defer func() {
		cancel()
		d.runMu.Lock()
		d.interactCancel = nil
		d.runMu.Unlock()
	}()

	inter, err := d.col.Interactions.Converse(ictx, flagged, conflicts)
	if inter != nil {
		d.recordInteraction(inter)
	}
	if err != nil {
		// Stop or force-check cancelled the window; the turn is
		// abandoned without executing anything.
		if ictx.Err() != nil {
			d.logger.Info("Interaction abandoned: %v", err)
			return nil
		}
		return err
	}

	if inter.Status != proto.InteractionAnswered || inter.Intent == nil {
		// Timed out: items stay unresolved and re-surface next cycle.
		return nil
	}

	intent := *inter.Intent
	switch {
	case intent.Actionable():
		if err := d.sm.TransitionTo(proto.StateExecuting, "intent "+string(intent.Kind)); err != nil {
			return err
		}
		d.execute(ctx, inter, intent, flagged)

	case intent.Kind == proto.IntentConfirm || intent.Kind == proto.IntentNoOp:
		// The user acknowledged; stop re-surfacing these items.
		d.markHandled(flagged, intent.TargetID)
	}

	d.col.Interactions.Abandon()
	return nil
}

func (d *Driver) execute(ctx context.Context, inter *interaction.Interaction, intent proto.Intent, flagged []*proto.MonitoredItem) {
	d.mu.Lock()
	knownCopy := make(map[string]*proto.MonitoredItem, len(d.known))
	for id, item := range d.known {
		knownCopy[id] = item
	}
	d.mu.Unlock()

	if intent.TargetID == "" && len(flagged) == 1 {
		// An unambiguous single item is the implied target.
		intent.TargetID = flagged[0].ID
	}

	result := d.col.Executor.Execute(ctx, intent, knownCopy)
	if result.Succeeded() {
		d.markHandled(flagged, intent.TargetID)
		if intent.Kind == proto.IntentCancel || intent.Kind == proto.IntentReschedule {
			d.mu.Lock()
			delete(d.known, intent.TargetID)
			d.mu.Unlock()
		}
	} else {
		d.logger.Warn("Execution incomplete: %s", result.Summary())
	}

	if d.col.History != nil {
		if err := d.col.History.RecordExecution(inter.ID, intent.Kind, result.Succeeded(), result.Summary(), result.ExecutedAt); err != nil {
			d.logger.Warn("Failed to record execution: %v", err)
		}
	}
}

// backoff enters ErrorBackoff with escalating cooldown, returning to
// Monitoring afterwards. A stop request cuts the cooldown short.
func (d *Driver) backoff(ctx context.Context, cause error) {
	d.mu.Lock()
	d.errorCount++
	n := d.errorCount
	d.mu.Unlock()
	metrics.ConsecutiveErrors.Set(float64(n))

	delay := time.Duration(d.cfg.ErrorBackoffBase)
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= time.Duration(d.cfg.ErrorBackoffCap) {
			delay = time.Duration(d.cfg.ErrorBackoffCap)
			break
		}
	}

	_ = d.sm.TransitionTo(proto.StateErrorBackoff, cause.Error())
	d.logger.Warn("Collaborator failure #%d, backing off %s: %v", n, delay, cause)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	_ = d.sm.TransitionTo(proto.StateMonitoring, "backoff elapsed")
}

func (d *Driver) markHandled(flagged []*proto.MonitoredItem, targetID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if targetID != "" {
		d.handled[targetID] = true
		return
	}
	for _, item := range flagged {
		d.handled[item.ID] = true
	}
}

func (d *Driver) restoreCheckpoint() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.watermark = time.Now().Add(-time.Duration(d.cfg.EmailLookbackOnStart))

	if d.col.Checkpoints == nil {
		return
	}
	cp, ok, err := d.col.Checkpoints.Load()
	if err != nil {
		d.logger.Warn("Failed to load checkpoint, starting fresh: %v", err)
		return
	}
	if !ok {
		return
	}

	if !cp.FetchWatermark.IsZero() {
		d.watermark = cp.FetchWatermark
	}
	for _, id := range cp.KnownItemIDs {
		d.seenIDs[id] = true
	}
	d.logger.Info("Checkpoint restored: watermark %s, %d seen items",
		d.watermark.Format(time.RFC3339), len(cp.KnownItemIDs))
}

func (d *Driver) saveCheckpoint() {
	if d.col.Checkpoints == nil {
		return
	}

	d.mu.Lock()
	ids := make([]string, 0, len(d.seenIDs))
	for id := range d.seenIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	cp := state.Checkpoint{
		State:          d.sm.Current(),
		FetchWatermark: d.watermark,
		KnownItemIDs:   ids,
	}
	d.mu.Unlock()

	if err := d.col.Checkpoints.Save(cp); err != nil {
		d.logger.Warn("Failed to save checkpoint: %v", err)
	}
}

func (d *Driver) recordCycle(rec persistence.CycleRecord) {
	if d.col.History == nil {
		return
	}
	if err := d.col.History.RecordCycle(rec); err != nil {
		d.logger.Warn("Failed to record cycle: %v", err)
	}
}

func (d *Driver) recordInteraction(inter *interaction.Interaction) {
	if d.col.History == nil {
		return
	}
	rec := persistence.InteractionRecord{
		ID:       inter.ID,
		OpenedAt: inter.OpenedAt,
		Deadline: inter.Deadline,
		Status:   string(inter.Status),
		Prompt:   inter.Prompt,
		RawReply: inter.RawReply,
	}
	if inter.Intent != nil {
		rec.IntentKind = string(inter.Intent.Kind)
	}
	if err := d.col.History.RecordInteraction(rec); err != nil {
		d.logger.Warn("Failed to record interaction: %v", err)
	}
}
