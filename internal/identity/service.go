package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gestaozabele/academico/internal/apperr"
	"github.com/gestaozabele/academico/internal/auth"
	"github.com/gestaozabele/academico/internal/db"
	"github.com/gestaozabele/academico/internal/events"
	"github.com/gestaozabele/academico/internal/idgen"
	"github.com/gestaozabele/academico/internal/metrics"
	"github.com/gestaozabele/academico/internal/reference"
)

// Service orquestra provisionamento, alteração e remoção de contas.
type Service struct {
	store    Store
	ids      *idgen.Generator
	bus      events.Bus
	defaults map[Role]string
	hash     func(string) (string, error)
	metrics  metrics.Recorder
	logger   zerolog.Logger
}

type Option func(*Service)

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHasher troca a função de hash da credencial.
func WithHasher(fn func(string) (string, error)) Option {
	return func(s *Service) { s.hash = fn }
}

// NewService recebe as senhas padrão por papel usadas quando a entrada vem sem credencial.
func NewService(store Store, ids *idgen.Generator, bus events.Bus, defaults map[Role]string, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		ids:      ids,
		bus:      bus,
		defaults: defaults,
		hash:     auth.Hash,
		metrics:  metrics.Nop{},
		logger:   logger.With().Str("component", "identity").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provision cria identidade e perfil numa única transação e devolve a
// identidade recarregada com o perfil e suas referências.
func (s *Service) Provision(ctx context.Context, role Role, in ProfileInput, cred IdentityInput) (*Identity, error) {
	created, err := s.provision(ctx, role, in, cred)
	if err != nil {
		s.metrics.Provisioned(string(role), metrics.OutcomeFailed)
		return nil, err
	}
	s.metrics.Provisioned(string(role), metrics.OutcomeOK)

	s.publish(ctx, events.TripleFor(string(role)).Created, created.Profile.Event())
	s.logger.Info().Str("role", string(role)).Str("public_id", created.PublicID).Msg("identity_provisioned")
	return created, nil
}

func (s *Service) provision(ctx context.Context, role Role, in ProfileInput, cred IdentityInput) (*Identity, error) {
	if !role.Valid() {
		return nil, apperr.BadRequest("papel inválido")
	}
	if strings.TrimSpace(in.Name.First) == "" || strings.TrimSpace(in.Name.Last) == "" {
		return nil, apperr.BadRequest("nome obrigatório")
	}

	password := cred.Password
	if password == "" {
		password = s.defaults[role]
	}
	if password == "" {
		return nil, apperr.BadRequest("senha padrão não configurada")
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, apperr.StorageFailed("falha ao gerar hash", err)
	}

	var created *Identity
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		publicID, err := s.nextPublicID(ctx, tx, role, in)
		if err != nil {
			return err
		}

		profile := &Profile{
			ID:           uuid.New(),
			PublicID:     publicID,
			Role:         role,
			Name:         trimName(in.Name),
			Email:        strings.TrimSpace(in.Email),
			ContactNo:    strings.TrimSpace(in.ContactNo),
			Gender:       strings.TrimSpace(in.Gender),
			DepartmentID: in.DepartmentID,
			FacultyID:    in.FacultyID,
		}
		switch role {
		case RoleStudent:
			profile.SemesterID = in.SemesterID
		case RoleAdmin:
			profile.Designation = strings.TrimSpace(in.Designation)
			profile.DepartmentID, profile.FacultyID = nil, nil
		default:
			profile.Designation = strings.TrimSpace(in.Designation)
		}
		if err := tx.InsertProfile(ctx, profile); err != nil {
			return err
		}

		identity := &Identity{
			ID:                 uuid.New(),
			PublicID:           publicID,
			Role:               role,
			PasswordHash:       hash,
			MustChangePassword: true,
			ProfileID:          profile.ID,
		}
		if err := tx.InsertIdentity(ctx, identity); err != nil {
			return err
		}

		created, err = tx.Load(ctx, publicID)
		return err
	})
	if err != nil {
		return nil, classify(err, "falha ao provisionar identidade")
	}
	return created, nil
}

// nextPublicID valida as referências e só então consome um valor do contador.
func (s *Service) nextPublicID(ctx context.Context, tx Tx, role Role, in ProfileInput) (string, error) {
	var semester *reference.Entity
	if role == RoleStudent {
		if in.SemesterID == nil {
			return "", apperr.PreconditionFailed("semestre de admissão obrigatório")
		}
		e, err := tx.GetReference(ctx, reference.KindSemester, *in.SemesterID)
		if err != nil {
			if errors.Is(err, reference.ErrNotFound) {
				return "", apperr.PreconditionFailed("semestre de admissão não encontrado")
			}
			return "", err
		}
		semester = e
	}

	if role != RoleAdmin {
		if err := requireReference(ctx, tx, reference.KindDepartment, in.DepartmentID, "departamento não encontrado"); err != nil {
			return "", err
		}
		if err := requireReference(ctx, tx, reference.KindFaculty, in.FacultyID, "faculdade não encontrada"); err != nil {
			return "", err
		}
	}

	var (
		id  string
		err error
	)
	switch role {
	case RoleStudent:
		id, err = s.ids.NextStudentID(ctx, semester.Year, semester.Code)
	case RoleFaculty:
		id, err = s.ids.NextFacultyID(ctx)
	case RoleAdmin:
		id, err = s.ids.NextAdminID(ctx)
	}
	if err != nil {
		return "", apperr.StorageFailed("falha ao gerar identificador", err)
	}
	return id, nil
}

func requireReference(ctx context.Context, tx Tx, kind reference.Kind, id *uuid.UUID, message string) error {
	if id == nil {
		return nil
	}
	if _, err := tx.GetReference(ctx, kind, *id); err != nil {
		if errors.Is(err, reference.ErrNotFound) {
			return apperr.PreconditionFailed(message)
		}
		return err
	}
	return nil
}

// DeleteProfile remove identidade e perfil numa transação e só retorna após o commit.
func (s *Service) DeleteProfile(ctx context.Context, role Role, publicID string) error {
	if !role.Valid() {
		return apperr.BadRequest("papel inválido")
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		profileID, err := tx.DeleteIdentity(ctx, role, publicID)
		if err != nil {
			return err
		}
		return tx.DeleteProfile(ctx, role, profileID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("perfil não encontrado")
		}
		return classify(err, "falha ao remover perfil")
	}

	s.publish(ctx, events.TripleFor(string(role)).Deleted, events.DeletePayload{ID: publicID})
	s.logger.Info().Str("role", string(role)).Str("public_id", publicID).Msg("identity_deleted")
	return nil
}

// UpdateProfile aplica alteração parcial e publica <papel>.updated.
func (s *Service) UpdateProfile(ctx context.Context, role Role, publicID string, patch ProfilePatch) (*Profile, error) {
	if !role.Valid() {
		return nil, apperr.BadRequest("papel inválido")
	}
	if patch.Empty() {
		return nil, apperr.BadRequest("nenhum campo para atualizar")
	}
	if role == RoleStudent && patch.Designation != nil {
		return nil, apperr.BadRequest("estudante não possui cargo")
	}
	for _, v := range []*string{patch.FirstName, patch.LastName} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return nil, apperr.BadRequest("nome obrigatório")
		}
	}

	var updated *Identity
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.UpdateProfile(ctx, role, publicID, patch)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		updated, err = tx.Load(ctx, publicID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("perfil não encontrado")
		}
		return nil, classify(err, "falha ao atualizar perfil")
	}

	s.publish(ctx, events.TripleFor(string(role)).Updated, updated.Profile.Event())
	return updated.Profile, nil
}

// Get devolve a identidade com o perfil preenchido.
func (s *Service) Get(ctx context.Context, publicID string) (*Identity, error) {
	i, err := s.store.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("identidade não encontrada")
		}
		return nil, classify(err, "falha ao consultar identidade")
	}
	return i, nil
}

// publish é best-effort: o registro já foi confirmado.
func (s *Service) publish(ctx context.Context, name string, payload any) {
	if s.bus == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err == nil {
		err = s.bus.Publish(ctx, name, body)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("event", name).Msg("identity_publish_failed")
	}
}

func classify(err error, message string) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case db.IsUniqueViolation(err):
		return apperr.Conflict("registro duplicado", err)
	default:
		return apperr.StorageFailed(message, err)
	}
}

func trimName(n Name) Name {
	return Name{
		First:  strings.TrimSpace(n.First),
		Middle: strings.TrimSpace(n.Middle),
		Last:   strings.TrimSpace(n.Last),
	}
}
