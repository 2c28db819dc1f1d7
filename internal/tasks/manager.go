// Package tasks is the AI task manager: it records AITask rows, runs them
// against the external providers on a bounded worker pool, ingests results
// into the artifact store and advances the order when every task has
// settled.
package tasks

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/config"
	"photoprint-backend/internal/database"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/orders"
	"photoprint-backend/internal/providers"
	"photoprint-backend/internal/uploader"
)

const (
	maxSubmitAttempts = 3
	pollInterval      = 3 * time.Second
	pollDeadline      = 10 * time.Minute
)

// ProviderFactory builds the client for a provider config. Swappable in
// tests.
type ProviderFactory func(cfg *models.APIProviderConfig) (providers.Provider, error)

type Manager struct {
	db       *database.Client
	store    *artifact.Store
	uploader uploader.Uploader
	orders   *orders.Service
	settings *config.RuntimeStore

	newProvider ProviderFactory
	downloader  *Downloader

	// CallbackBaseURL is prepended to the meitu repost path; empty disables
	// callbacks and leaves result retrieval to polling.
	callbackBaseURL string

	queue    chan int64
	comfySem *semaphore.Weighted
	apiSem   *semaphore.Weighted
}

func NewManager(db *database.Client, store *artifact.Store, up uploader.Uploader, ord *orders.Service, settings *config.RuntimeStore, callbackBaseURL string) (*Manager, error) {
	snap, err := settings.Snapshot()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		db:              db,
		store:           store,
		uploader:        up,
		orders:          ord,
		settings:        settings,
		newProvider:     providers.New,
		downloader:      NewDownloader(),
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		queue:           make(chan int64, snap.TaskQueueMaxSize),
		comfySem:        semaphore.NewWeighted(int64(snap.ComfyUIMaxConcurrency)),
		apiSem:          semaphore.NewWeighted(int64(snap.APIMaxConcurrency)),
	}
	// Queue capacity and concurrency caps are sized once at startup; the
	// remaining settings are re-read per operation.
	return m, nil
}

// SetProviderFactory replaces the provider constructor, for tests.
func (m *Manager) SetProviderFactory(f ProviderFactory) { m.newProvider = f }

// Subscribe re-drives any pending tasks when an order enters
// ai_processing, so tasks created before the transition (or left behind by
// a crash) get executed.
func (m *Manager) Subscribe(bus *orders.Bus) {
	bus.Subscribe(func(ev orders.Event) {
		switch ev.To {
		case models.StatusShooting:
			log.Printf("tasks: order %s entered production", ev.OrderNumber)
		case models.StatusAIProcessing:
			go func() {
				if err := m.ResumePending(context.Background(), ev.OrderID); err != nil {
					log.Printf("tasks: resume for order %s: %v", ev.OrderNumber, err)
				}
			}()
		}
	})
}

// ResumePending enqueues every pending task of an order.
func (m *Manager) ResumePending(ctx context.Context, orderID int64) error {
	list, err := m.db.ListTasksByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, t := range list {
		if t.Status != models.TaskPending {
			continue
		}
		select {
		case m.queue <- t.ID:
		default:
			go func(id int64) {
				if err := m.execute(context.Background(), id); err != nil {
					log.Printf("tasks: task %d: %v", id, err)
				}
			}(t.ID)
		}
	}
	return nil
}

// Start launches the worker pool and subscribes to lifecycle events so
// orders entering ai_processing get their styled tasks submitted.
func (m *Manager) Start(ctx context.Context) error {
	snap, err := m.settings.Snapshot()
	if err != nil {
		return err
	}
	for i := 0; i < snap.TaskQueueWorkers; i++ {
		go m.worker(ctx, i)
	}
	log.Printf("tasks: started %d workers (queue cap %d)", snap.TaskQueueWorkers, cap(m.queue))
	return nil
}

func (m *Manager) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-m.queue:
			if err := m.execute(ctx, taskID); err != nil {
				log.Printf("tasks: worker %d: task %d: %v", id, taskID, err)
			}
		}
	}
}

// Fingerprint keys idempotent submission over the order, the style, and
// the sorted input set.
func Fingerprint(orderID, styleImageID int64, inputs []string) string {
	sorted := append([]string(nil), inputs...)
	sort.Strings(sorted)
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s", orderID, styleImageID, strings.Join(sorted, "|"))
	return hex.EncodeToString(h.Sum(nil))
}

// Submit records a pending AITask and enqueues it. Re-submitting while an
// identical task is still non-terminal returns the existing task id.
func (m *Manager) Submit(ctx context.Context, orderID, styleImageID int64, inputRefs []string) (int64, error) {
	if len(inputRefs) == 0 {
		return 0, models.Validationf("at least one input image is required")
	}
	order, err := m.db.GetOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}

	fp := Fingerprint(orderID, styleImageID, inputRefs)
	if existing, err := m.db.FindActiveTaskByFingerprint(ctx, fp); err == nil {
		return existing.ID, nil
	} else if err != models.ErrNotFound {
		return 0, err
	}

	si, _, cfg, err := m.db.ResolveStyleRecipe(ctx, styleImageID)
	if err != nil {
		return 0, err
	}

	task := &models.AITask{
		OrderID:         orderID,
		OrderNumber:     order.OrderNumber,
		ProviderKind:    cfg.APIType,
		StyleCategoryID: sql.NullInt64{Int64: si.StyleCategoryID, Valid: true},
		StyleImageID:    sql.NullInt64{Int64: styleImageID, Valid: true},
		InputImages:     inputRefs,
		Fingerprint:     fp,
		Status:          models.TaskPending,
	}
	if err := m.db.CreateTask(ctx, task); err != nil {
		return 0, err
	}

	select {
	case m.queue <- task.ID:
	default:
		// Queue full; run on a dedicated goroutine rather than dropping or
		// blocking the caller.
		log.Printf("tasks: queue full, running task %d out of band", task.ID)
		go func() {
			if err := m.execute(context.Background(), task.ID); err != nil {
				log.Printf("tasks: task %d: %v", task.ID, err)
			}
		}()
	}
	return task.ID, nil
}

func (m *Manager) sem(kind models.ProviderKind) *semaphore.Weighted {
	if kind == models.KindWorkflow || kind == models.KindComfyUIWorkflow {
		return m.comfySem
	}
	return m.apiSem
}

// execute drives one task from pending to a terminal state (or, for
// meitu-async, to a submitted pending state awaiting callback/query).
func (m *Manager) execute(ctx context.Context, taskID int64) error {
	task, err := m.db.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}

	sem := m.sem(task.ProviderKind)
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	provider, sub, err := m.prepare(ctx, task)
	if err != nil {
		return m.terminalFail(ctx, task, err)
	}

	// The async beautification provider keeps the task in pending:
	// completion comes later through callback or operator query.
	if task.ProviderKind != models.KindMeituAsync {
		if err := m.db.MarkTaskProcessing(ctx, task.ID, time.Now()); err != nil {
			return err
		}
	}

	var result *providers.SubmitResult
	err = providers.RetryWithBackoff(func() error {
		r, err := provider.Submit(ctx, *sub)
		if err != nil {
			if ierr := m.db.IncrementTaskRetry(ctx, task.ID); ierr != nil {
				log.Printf("tasks: task %d: failed to bump retry count: %v", task.ID, ierr)
			}
			return err
		}
		result = r
		return nil
	}, maxSubmitAttempts)
	if err != nil {
		return m.terminalFail(ctx, task, err)
	}

	promptID, msgID := "", ""
	if task.ProviderKind == models.KindMeituAsync {
		msgID = result.Handle
	} else {
		promptID = result.Handle
	}
	reqPayload, _ := sub.MarshalRequest()
	if err := m.db.SetTaskSubmission(ctx, task.ID, promptID, msgID, reqPayload, result.Raw); err != nil {
		return err
	}

	if len(result.ImageURLs) > 0 {
		return m.ingest(ctx, task, result.ImageURLs)
	}
	if task.ProviderKind == models.KindMeituAsync {
		return nil
	}
	return m.pollUntilSettled(ctx, task, provider, result.Handle)
}

// prepare resolves the style recipe and turns local artifacts into public
// URLs. Failures here are terminal for the submission.
func (m *Manager) prepare(ctx context.Context, task *models.AITask) (providers.Provider, *providers.Submission, error) {
	if !task.StyleImageID.Valid {
		return nil, nil, models.Validationf("task %d has no style image", task.ID)
	}
	si, tmpl, cfg, err := m.db.ResolveStyleRecipe(ctx, task.StyleImageID.Int64)
	if err != nil {
		return nil, nil, err
	}
	provider, err := m.newProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	urls := make([]string, 0, len(task.InputImages))
	for _, name := range task.InputImages {
		path, err := m.store.Path(name)
		if err != nil {
			return nil, nil, err
		}
		u, err := m.uploader.PublicURL(ctx, path, task.OrderNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to publish input %s: %w", name, err)
		}
		urls = append(urls, u)
	}

	sub := &providers.Submission{
		TaskID:       task.ID,
		OrderNumber:  task.OrderNumber,
		ImageURLs:    urls,
		Prompt:       si.Prompt.String,
		Template:     tmpl.RequestBodyTemplate,
		ModelName:    tmpl.ModelName.String,
		WorkflowID:   tmpl.WorkflowID.String,
		OutputNodeID: tmpl.OutputNodeID.String,
	}
	if cfg.APIType == models.KindMeituAsync && m.callbackBaseURL != "" {
		sub.CallbackURL = m.callbackBaseURL + "/meitu/callback"
	}
	return provider, sub, nil
}

func (m *Manager) pollUntilSettled(ctx context.Context, task *models.AITask, provider providers.Provider, handle string) error {
	deadline := time.Now().Add(pollDeadline)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		result, err := provider.Poll(ctx, handle)
		if err != nil {
			if providers.IsPermanent(err) {
				return m.terminalFail(ctx, task, err)
			}
			log.Printf("tasks: task %d: poll error: %v", task.ID, err)
			continue
		}
		switch result.State {
		case providers.PollCompleted:
			return m.ingest(ctx, task, result.ImageURLs)
		case providers.PollFailed:
			return m.terminalFail(ctx, task, fmt.Errorf("provider reported failure: %s", result.Message))
		}

		if time.Now().After(deadline) {
			return m.terminalFail(ctx, task, fmt.Errorf("provider did not finish within %s", pollDeadline))
		}
	}
}

// Poll re-queries the provider for one task; used by the periodic sweeper
// and by operator recheck.
func (m *Manager) Poll(ctx context.Context, taskID int64) error {
	task, err := m.db.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return models.Validationf("task %d is already %s", taskID, task.Status)
	}
	handle := task.PromptID.String
	if task.ProviderKind == models.KindMeituAsync {
		handle = task.MsgID.String
	}
	if handle == "" {
		return models.Validationf("task %d has no provider handle yet", taskID)
	}

	provider, _, err := m.prepareProviderOnly(ctx, task)
	if err != nil {
		return err
	}
	result, err := provider.Poll(ctx, handle)
	if err != nil {
		if providers.IsPermanent(err) {
			return m.terminalFail(ctx, task, err)
		}
		return err
	}
	switch result.State {
	case providers.PollCompleted:
		return m.ingest(ctx, task, result.ImageURLs)
	case providers.PollFailed:
		return m.terminalFail(ctx, task, fmt.Errorf("provider reported failure: %s", result.Message))
	}
	return nil
}

// QueryMeitu is the operator re-query for the async beautification
// provider.
func (m *Manager) QueryMeitu(ctx context.Context, taskID int64) error {
	task, err := m.db.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.ProviderKind != models.KindMeituAsync {
		return models.Validationf("task %d is not a meitu-async task", taskID)
	}
	return m.Poll(ctx, taskID)
}

// HandleCallback processes a push result from the async beautification
// provider, matching the task by msg_id.
func (m *Manager) HandleCallback(ctx context.Context, cb models.MeituCallback) error {
	if cb.MsgID == "" {
		return models.Validationf("callback has no msg_id")
	}
	task, err := m.db.GetTaskByMsgID(ctx, cb.MsgID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if cb.Code != 0 || cb.MediaData == "" {
		return m.terminalFail(ctx, task, fmt.Errorf("provider callback failed with code %d: %s", cb.Code, cb.Message))
	}
	return m.ingest(ctx, task, []string{cb.MediaData})
}

// Cancel terminalises a task; if a provider handle exists a best-effort
// cancel is attempted first. Provider refusal is logged, not retried.
func (m *Manager) Cancel(ctx context.Context, taskID int64) error {
	task, err := m.db.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return models.Validationf("task %d is already %s", taskID, task.Status)
	}
	handle := task.PromptID.String
	if task.ProviderKind == models.KindMeituAsync {
		handle = task.MsgID.String
	}
	if handle != "" {
		if provider, _, err := m.prepareProviderOnly(ctx, task); err == nil {
			if err := provider.Cancel(ctx, handle); err != nil {
				log.Printf("tasks: task %d: provider refused cancel: %v", taskID, err)
			}
		}
	}
	return m.db.CancelTask(ctx, taskID)
}

func (m *Manager) prepareProviderOnly(ctx context.Context, task *models.AITask) (providers.Provider, *models.APIProviderConfig, error) {
	if !task.StyleImageID.Valid {
		return nil, nil, models.Validationf("task %d has no style image", task.ID)
	}
	_, _, cfg, err := m.db.ResolveStyleRecipe(ctx, task.StyleImageID.Int64)
	if err != nil {
		return nil, nil, err
	}
	p, err := m.newProvider(cfg)
	return p, cfg, err
}

// ingest downloads the first result, stores it under the deterministic
// effect name, renders the thumbnail, and completes the task. The order
// advances to pending_selection in the same transaction once every task
// has settled.
func (m *Manager) ingest(ctx context.Context, task *models.AITask, urls []string) error {
	if len(urls) == 0 {
		return m.terminalFail(ctx, task, fmt.Errorf("provider returned no outputs"))
	}
	resultURL := urls[0]

	now := time.Now()
	original := "result.jpg"
	if len(task.InputImages) > 0 {
		original = task.InputImages[0]
	}
	name := artifact.EffectFilename(task.OrderNumber, now, int(task.ID), original)

	if err := m.downloader.Fetch(ctx, resultURL, m.store, name); err != nil {
		return m.terminalFail(ctx, task, fmt.Errorf("failed to download result: %w", err))
	}
	if _, err := m.store.EnsureThumbnail(name); err != nil {
		log.Printf("tasks: task %d: thumbnail generation failed: %v", task.ID, err)
	}

	var ev *orders.Event
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := m.db.CompleteTaskTx(tx, task.ID, name, true, resultURL, now); err != nil {
			return err
		}
		o, err := m.db.GetOrderForUpdateTx(tx, task.OrderID)
		if err != nil {
			return err
		}
		settled, anyCompleted, err := m.db.TasksSettledTx(tx, task.OrderID)
		if err != nil {
			return err
		}
		if settled && anyCompleted && o.Status == models.StatusAIProcessing {
			e, err := m.orders.AdvanceTx(tx, o, models.StatusPendingSelection, "task-manager")
			if err != nil {
				return err
			}
			ev = &e
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ev != nil {
		m.orders.Bus().Publish(*ev)
	}
	log.Printf("tasks: task %d completed, artifact %s", task.ID, name)
	return nil
}

func (m *Manager) terminalFail(ctx context.Context, task *models.AITask, cause error) error {
	log.Printf("tasks: task %d failed: %v", task.ID, cause)
	if err := m.db.FailTask(ctx, task.ID, cause.Error()); err != nil {
		return err
	}
	return nil
}
