package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gestaozabele/academico/internal/events"
	"github.com/gestaozabele/academico/internal/metrics"
)

// RetryPolicy controla as tentativas locais de um handler antes do descarte.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetry: 3 tentativas, 100ms, 200ms entre elas.
var DefaultRetry = RetryPolicy{Attempts: 3, Base: 100 * time.Millisecond, Max: 2 * time.Second}

// Backoff devolve o atraso antes da tentativa attempt+1, dobrando a cada falha até Max.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay > p.Max {
			return p.Max
		}
	}
	return delay
}

// Engine aplica eventos de entidades de referência na réplica local.
type Engine struct {
	store    Store
	bus      events.Bus
	logger   zerolog.Logger
	metrics  metrics.Recorder
	retry    RetryPolicy
	now      func() time.Time
	handlers map[string]events.Handler

	mu   sync.Mutex
	subs []events.Subscription
}

type Option func(*Engine)

func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithRetry(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine monta o registro nome-do-evento → handler para todos os tipos.
func NewEngine(store Store, bus events.Bus, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		bus:      bus,
		logger:   logger.With().Str("component", "reference.engine").Logger(),
		metrics:  metrics.Nop{},
		retry:    DefaultRetry,
		now:      time.Now,
		handlers: make(map[string]events.Handler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry.Attempts < 1 {
		e.retry.Attempts = 1
	}

	for _, kind := range Kinds {
		kind := kind
		names := events.TripleFor(string(kind))
		e.handlers[names.Created] = e.upsertHandler(names.Created, kind)
		e.handlers[names.Updated] = e.upsertHandler(names.Updated, kind)
		e.handlers[names.Deleted] = e.deleteHandler(names.Deleted, kind)
	}
	return e
}

// Events lista os nomes registrados em ordem estável.
func (e *Engine) Events() []string {
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start assina todos os eventos registrados. Em falha desfaz as inscrições já feitas.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.subs) > 0 {
		return errors.New("reference: engine já iniciado")
	}

	for _, name := range e.Events() {
		sub, err := e.bus.Subscribe(ctx, name, e.handlers[name])
		if err != nil {
			for _, s := range e.subs {
				_ = s.Close()
			}
			e.subs = nil
			return fmt.Errorf("reference: assinar %s: %w", name, err)
		}
		e.subs = append(e.subs, sub)
	}
	e.logger.Info().Int("events", len(e.subs)).Msg("replication_started")
	return nil
}

// Stop cancela todas as inscrições.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for _, s := range e.subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.subs = nil
	e.logger.Info().Msg("replication_stopped")
	return errors.Join(errs...)
}

// Handle entrega um evento diretamente ao handler registrado.
func (e *Engine) Handle(ctx context.Context, name string, payload []byte) error {
	h, ok := e.handlers[name]
	if !ok {
		return fmt.Errorf("reference: evento sem handler %q", name)
	}
	return h(ctx, payload)
}

func (e *Engine) upsertHandler(name string, kind Kind) events.Handler {
	return func(ctx context.Context, payload []byte) error {
		var p events.UpsertPayload
		if err := json.Unmarshal(payload, &p); err != nil || strings.TrimSpace(p.ID) == "" {
			e.invalid(name, err)
			return nil
		}
		entity := entityFromPayload(kind, p)
		e.run(ctx, name, p.ID, func(ctx context.Context) (string, error) {
			return e.ApplyUpsert(ctx, entity)
		})
		return nil
	}
}

func (e *Engine) deleteHandler(name string, kind Kind) events.Handler {
	return func(ctx context.Context, payload []byte) error {
		var p events.DeletePayload
		if err := json.Unmarshal(payload, &p); err != nil || strings.TrimSpace(p.ID) == "" {
			e.invalid(name, err)
			return nil
		}
		e.run(ctx, name, p.ID, func(ctx context.Context) (string, error) {
			return e.ApplyDelete(ctx, kind, p.ID)
		})
		return nil
	}
}

func (e *Engine) invalid(name string, err error) {
	e.metrics.ReplicationApplied(name, metrics.OutcomeInvalid)
	ev := e.logger.Warn().Str("event", name)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("replication_invalid_payload")
}

// run aplica fn com retry local; esgotadas as tentativas o evento é descartado.
func (e *Engine) run(ctx context.Context, name, syncID string, fn func(ctx context.Context) (string, error)) {
	start := e.now()
	var err error
attempts:
	for attempt := 0; attempt < e.retry.Attempts; attempt++ {
		if attempt > 0 {
			e.metrics.ReplicationApplied(name, metrics.OutcomeRetried)
			select {
			case <-ctx.Done():
				break attempts
			case <-time.After(e.retry.Backoff(attempt - 1)):
			}
		}

		var outcome string
		outcome, err = fn(ctx)
		if err == nil {
			e.metrics.ReplicationApplied(name, outcome)
			e.metrics.ReplicationLatency(name, e.now().Sub(start))
			e.logger.Debug().Str("event", name).Str("sync_id", syncID).Str("outcome", outcome).Msg("replication_applied")
			return
		}
		e.logger.Warn().Err(err).Str("event", name).Str("sync_id", syncID).Int("attempt", attempt+1).Msg("replication_attempt_failed")
	}

	e.metrics.ReplicationApplied(name, metrics.OutcomeDropped)
	e.logger.Error().Err(err).Str("event", name).Str("sync_id", syncID).Msg("replication_dropped")
}

// ApplyUpsert grava created/updated. Devolve o resultado usado em métricas.
func (e *Engine) ApplyUpsert(ctx context.Context, entity Entity) (string, error) {
	outcome := metrics.OutcomeApplied
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, entity.Kind, entity.SyncID); err != nil {
			return err
		}

		dead, err := tx.IsTombstoned(ctx, entity.Kind, entity.SyncID)
		if err != nil {
			return err
		}
		if dead {
			outcome = metrics.OutcomeTombstoned
			return nil
		}

		current, err := tx.Find(ctx, entity.Kind, entity.SyncID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if entity.OlderThan(current) {
			outcome = metrics.OutcomeStale
			return nil
		}
		if current != nil {
			entity.ID = current.ID
		}

		if entity.Kind == KindDepartment {
			entity.ParentID = nil
			if entity.ParentSyncID != "" {
				parent, err := tx.Find(ctx, KindFaculty, entity.ParentSyncID)
				switch {
				case err == nil:
					id := parent.ID
					entity.ParentID = &id
				case !errors.Is(err, ErrNotFound):
					return err
				default:
					gone, err := tx.IsTombstoned(ctx, KindFaculty, entity.ParentSyncID)
					if err != nil {
						return err
					}
					if gone {
						entity.ParentSyncID = ""
					}
				}
			}
		}

		if err := tx.Upsert(ctx, &entity); err != nil {
			return err
		}

		if entity.Kind == KindFaculty {
			n, err := tx.AttachOrphans(ctx, entity.SyncID, entity.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				e.logger.Info().Str("faculty", entity.SyncID).Int64("departments", n).Msg("replication_orphans_attached")
			}
		}
		return nil
	})
	return outcome, err
}

// ApplyDelete remove pelo syncId e registra a lápide; ausência é no-op.
// Departamentos de uma faculdade removida deixam de apontar para ela.
func (e *Engine) ApplyDelete(ctx context.Context, kind Kind, syncID string) (string, error) {
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, kind, syncID); err != nil {
			return err
		}
		if err := tx.Tombstone(ctx, kind, syncID, e.now().UTC()); err != nil {
			return err
		}
		if _, err := tx.Delete(ctx, kind, syncID); err != nil {
			return err
		}
		if kind == KindFaculty {
			n, err := tx.DetachDepartments(ctx, syncID)
			if err != nil {
				return err
			}
			if n > 0 {
				e.logger.Info().Str("faculty", syncID).Int64("departments", n).Msg("replication_departments_detached")
			}
		}
		return nil
	})
	return metrics.OutcomeApplied, err
}

// Reconcile tenta resolver o pai de todo departamento pendente. Devolve quantos foram ligados.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	pending, err := e.store.PendingDepartments(ctx)
	if err != nil {
		return 0, fmt.Errorf("reference: listar pendentes: %w", err)
	}

	resolved := 0
	for _, dep := range pending {
		attached := false
		err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Lock(ctx, KindDepartment, dep.SyncID); err != nil {
				return err
			}
			current, err := tx.Find(ctx, KindDepartment, dep.SyncID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			if current.ParentID != nil || current.ParentSyncID == "" {
				return nil
			}
			parent, err := tx.Find(ctx, KindFaculty, current.ParentSyncID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil
				}
				return err
			}
			id := parent.ID
			current.ParentID = &id
			attached = true
			return tx.Upsert(ctx, current)
		})
		if err != nil {
			return resolved, fmt.Errorf("reference: reconciliar %s: %w", dep.SyncID, err)
		}
		if attached {
			resolved++
		}
	}

	e.logger.Info().Int("pending", len(pending)).Int("resolved", resolved).Msg("replication_reconciled")
	return resolved, nil
}

func entityFromPayload(kind Kind, p events.UpsertPayload) Entity {
	e := Entity{
		Kind:   kind,
		SyncID: strings.TrimSpace(p.ID),
		Title:  p.Title,
	}
	switch kind {
	case KindSemester:
		e.Year, e.Code, e.StartMonth, e.EndMonth = p.Year, p.Code, p.StartMonth, p.EndMonth
	case KindDepartment:
		e.ParentSyncID = strings.TrimSpace(p.Parent())
	}
	if p.UpdatedAt != nil {
		t := p.UpdatedAt.UTC()
		e.SourceUpdatedAt = &t
	}
	return e
}
