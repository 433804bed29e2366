// File: internal/usecase/plan_uc.go
package usecase

import (
	"context"

	"trulyinvoice/internal/domain/model"
)

var _ PlanUseCase = (*planUC)(nil)

// PlanView is one catalogue entry with both purchasable prices.
type PlanView struct {
	model.Plan
	YearlyPrice int64 `json:"yearly_price_paise"`
}

type PlanUseCase interface {
	List(ctx context.Context) []PlanView
}

type planUC struct{}

func NewPlanUseCase() *planUC { return &planUC{} }

func (u *planUC) List(_ context.Context) []PlanView {
	plans := model.Plans()
	out := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		v := PlanView{Plan: p}
		if yearly, err := model.PriceFor(p.Tier, model.BillingYearly); err == nil {
			v.YearlyPrice = yearly
		}
		out = append(out, v)
	}
	return out
}
