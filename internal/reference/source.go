package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/gestaozabele/academico/internal/apperr"
	"github.com/gestaozabele/academico/internal/events"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewSyncID gera um ULID ordenável por tempo.
func NewSyncID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// SourceInput são os campos editáveis no serviço dono da entidade.
type SourceInput struct {
	Title        string
	Year         string
	Code         string
	StartMonth   string
	EndMonth     string
	ParentSyncID string
}

// Source é o lado dono das entidades: grava localmente e publica o evento.
// A publicação acontece após o commit; falha de publicação é devolvida ao chamador
// e o registro local permanece.
type Source struct {
	store  Store
	bus    events.Bus
	logger zerolog.Logger
	now    func() time.Time
}

func NewSource(store Store, bus events.Bus, logger zerolog.Logger) *Source {
	return &Source{
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "reference.source").Logger(),
		now:    time.Now,
	}
}

func (s *Source) Create(ctx context.Context, kind Kind, in SourceInput) (*Entity, error) {
	if err := validateInput(kind, in); err != nil {
		return nil, err
	}
	entity := s.entityFromInput(kind, NewSyncID(), in)

	if err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := resolveParent(ctx, tx, &entity); err != nil {
			return err
		}
		return tx.Upsert(ctx, &entity)
	}); err != nil {
		return nil, storageError(err)
	}

	return &entity, s.publish(ctx, events.TripleFor(string(kind)).Created, toPayload(entity))
}

func (s *Source) Update(ctx context.Context, kind Kind, syncID string, in SourceInput) (*Entity, error) {
	if err := validateInput(kind, in); err != nil {
		return nil, err
	}
	entity := s.entityFromInput(kind, syncID, in)

	if err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, kind, syncID); err != nil {
			return err
		}
		current, err := tx.Find(ctx, kind, syncID)
		if err != nil {
			return err
		}
		entity.ID = current.ID
		if err := resolveParent(ctx, tx, &entity); err != nil {
			return err
		}
		return tx.Upsert(ctx, &entity)
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("entidade não encontrada")
		}
		return nil, storageError(err)
	}

	return &entity, s.publish(ctx, events.TripleFor(string(kind)).Updated, toPayload(entity))
}

func (s *Source) Delete(ctx context.Context, kind Kind, syncID string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Lock(ctx, kind, syncID); err != nil {
			return err
		}
		found, err := tx.Delete(ctx, kind, syncID)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if kind == KindFaculty {
			if _, err := tx.DetachDepartments(ctx, syncID); err != nil {
				return err
			}
		}
		return tx.Tombstone(ctx, kind, syncID, s.now().UTC())
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("entidade não encontrada")
		}
		return storageError(err)
	}

	return s.publish(ctx, events.TripleFor(string(kind)).Deleted, events.DeletePayload{ID: syncID})
}

func (s *Source) publish(ctx context.Context, name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, name, body); err != nil {
		s.logger.Error().Err(err).Str("event", name).Msg("reference_publish_failed")
		return apperr.StorageFailed("falha ao publicar evento", err)
	}
	return nil
}

func (s *Source) entityFromInput(kind Kind, syncID string, in SourceInput) Entity {
	now := s.now().UTC()
	e := Entity{
		Kind:            kind,
		SyncID:          syncID,
		Title:           strings.TrimSpace(in.Title),
		SourceUpdatedAt: &now,
	}
	switch kind {
	case KindSemester:
		e.Year = strings.TrimSpace(in.Year)
		e.Code = strings.TrimSpace(in.Code)
		e.StartMonth = in.StartMonth
		e.EndMonth = in.EndMonth
	case KindDepartment:
		e.ParentSyncID = strings.TrimSpace(in.ParentSyncID)
	}
	return e
}

func validateInput(kind Kind, in SourceInput) error {
	if !kind.Valid() {
		return apperr.BadRequest(fmt.Sprintf("tipo inválido: %s", kind))
	}
	if strings.TrimSpace(in.Title) == "" {
		return apperr.BadRequest("título obrigatório")
	}
	if kind == KindSemester && (strings.TrimSpace(in.Year) == "" || strings.TrimSpace(in.Code) == "") {
		return apperr.BadRequest("ano e código obrigatórios")
	}
	return nil
}

func resolveParent(ctx context.Context, tx Tx, e *Entity) error {
	if e.Kind != KindDepartment || e.ParentSyncID == "" {
		return nil
	}
	parent, err := tx.Find(ctx, KindFaculty, e.ParentSyncID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.PreconditionFailed("faculdade não encontrada")
		}
		return err
	}
	id := parent.ID
	e.ParentID = &id
	return nil
}

func storageError(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.StorageFailed("falha ao gravar entidade", err)
}

func toPayload(e Entity) events.UpsertPayload {
	p := events.UpsertPayload{
		ID:         e.SyncID,
		Title:      e.Title,
		Year:       e.Year,
		Code:       e.Code,
		StartMonth: e.StartMonth,
		EndMonth:   e.EndMonth,
		UpdatedAt:  e.SourceUpdatedAt,
	}
	if e.Kind == KindDepartment && e.ParentSyncID != "" {
		p.ParentSyncID = e.ParentSyncID
		p.AcademicFacultyID = e.ParentSyncID
	}
	return p
}
