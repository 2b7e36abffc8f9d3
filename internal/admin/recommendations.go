package admin

// recommendations.go — frontera administrativa del ciclo de vida de las
// recomendaciones de parámetros. Una aprobación valida el valor propuesto
// contra los guardrails antes de tocar settings; un valor fuera de rango
// se rechaza sin mutar nada.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
)

// Cuánto puede esperar una recomendación pendiente antes de caducar.
const staleAfter = 7 * 24 * time.Hour

// Service gestiona aprobaciones y denegaciones de recomendaciones.
type Service struct {
	store ports.Store
}

// NewService crea el servicio.
func NewService(store ports.Store) *Service {
	return &Service{store: store}
}

// Approve valida el valor propuesto contra su guardrail y, si pasa, escribe
// el valor normalizado en settings y marca la recomendación como aprobada.
// Un valor inválido devuelve el error de validación y no muta el setting.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	rec, err := s.store.GetRecommendation(ctx, id)
	if err != nil {
		return fmt.Errorf("admin.Approve: load %s: %w", id, err)
	}
	if rec.Status != domain.RecommendationPending {
		return fmt.Errorf("admin.Approve: %s is %s, not pending", id, rec.Status)
	}

	normalized, err := risk.Validate(rec.SettingKey, rec.ProposedValue)
	if err != nil {
		return fmt.Errorf("admin.Approve: %s: %w", id, err)
	}

	if err := s.store.SetSetting(ctx, rec.SettingKey, normalized); err != nil {
		return fmt.Errorf("admin.Approve: write setting %s: %w", rec.SettingKey, err)
	}
	if err := s.store.ResolveRecommendation(ctx, id, domain.RecommendationApproved, ""); err != nil {
		return fmt.Errorf("admin.Approve: resolve %s: %w", id, err)
	}

	slog.Info("admin: recommendation approved",
		"id", id, "key", rec.SettingKey, "value", normalized)
	return nil
}

// Deny marca una recomendación pendiente como denegada.
func (s *Service) Deny(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.store.ResolveRecommendation(ctx, id, domain.RecommendationDenied, reason); err != nil {
		return fmt.Errorf("admin.Deny: %s: %w", id, err)
	}
	slog.Info("admin: recommendation denied", "id", id, "reason", reason)
	return nil
}

// ExpireStale caduca las recomendaciones pendientes con más de una semana.
// Devuelve cuántas caducaron.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	pending, err := s.store.PendingRecommendations(ctx)
	if err != nil {
		return 0, fmt.Errorf("admin.ExpireStale: list pending: %w", err)
	}

	cutoff := time.Now().UTC().Add(-staleAfter)
	expired := 0
	for _, rec := range pending {
		if rec.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.store.ResolveRecommendation(ctx, rec.ID, domain.RecommendationExpired, "stale"); err != nil {
			slog.Warn("admin: expire failed", "id", rec.ID, "err", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		slog.Info("admin: stale recommendations expired", "count", expired)
	}
	return expired, nil
}
