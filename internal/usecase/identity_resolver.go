package usecase

import (
	"context"
	"fmt"
	"strings"

	"reconciler/internal/domain/model"
	repo "reconciler/internal/repository"
)

// 識別子で注文を探す部分だけ
type OrderFinder interface {
	FindByIdentifier(ctx context.Context, candidate string) ([]model.Order, error)
}

// 通知から取れる識別子。優先順は PaymentID > PreferenceID > ExternalReference。
type Identifiers struct {
	PaymentID         string
	PreferenceID      string
	ExternalReference string
}

// Candidates は空を除き、重複を除いた候補を優先順で返す。
func (ids Identifiers) Candidates() []string {
	out := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, v := range []string{ids.PaymentID, ids.PreferenceID, ids.ExternalReference} {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ResolveOrder は候補の集合を1件の注文に解決する。
// 1候補が複数注文に一致する、または候補同士が別の注文に一致する場合は ErrAmbiguousOrder。
// どれにも一致しなければ repo.ErrNotFound。
func ResolveOrder(ctx context.Context, finder OrderFinder, ids Identifiers) (model.Order, error) {
	candidates := ids.Candidates()
	if len(candidates) == 0 {
		return model.Order{}, repo.ErrNotFound
	}

	var (
		winner    model.Order
		winnerBy  string
		hasWinner bool
	)
	for _, c := range candidates {
		matches, err := finder.FindByIdentifier(ctx, c)
		if err != nil {
			return model.Order{}, fmt.Errorf("find order by %q: %w", c, err)
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			return model.Order{}, fmt.Errorf("%w: %q matches %d orders", ErrAmbiguousOrder, c, len(matches))
		}

		m := matches[0]
		if !hasWinner {
			winner, winnerBy, hasWinner = m, c, true
			continue
		}
		if m.ID != winner.ID {
			return model.Order{}, fmt.Errorf("%w: %q -> order %d, %q -> order %d", ErrAmbiguousOrder, winnerBy, winner.ID, c, m.ID)
		}
	}

	if !hasWinner {
		return model.Order{}, repo.ErrNotFound
	}
	return winner, nil
}
