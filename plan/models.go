package plan

import (
	"time"

	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// Next returns the end of a billing period that starts at t.
func (p Period) Next(t time.Time) time.Time {
	switch p {
	case PeriodYearly:
		return t.AddDate(1, 0, 0)
	case PeriodMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 1, 0)
}

type Plan struct {
	types.Entity
	ID            id.PlanID         `json:"id"`
	Name          string            `json:"name"`
	Slug          string            `json:"slug"`
	Description   string            `json:"description"`
	Price         types.Money       `json:"price"`
	BillingPeriod Period            `json:"billing_period"`
	Status        Status            `json:"status"`
	TrialDays     int               `json:"trial_days"`
	Features      []Feature         `json:"features"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Feature struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Limit int64  `json:"limit"` // -1 = unlimited
}

func (p *Plan) FindFeature(key string) *Feature {
	for i := range p.Features {
		if p.Features[i].Key == key {
			return &p.Features[i]
		}
	}
	return nil
}

func (p *Plan) IsPurchasable() bool {
	return p.Status == StatusActive
}

func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Features = append([]Feature(nil), p.Features...)
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
