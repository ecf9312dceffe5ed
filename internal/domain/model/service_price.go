package model

import (
	"time"

	"github.com/storeseo/pointsledger/internal/domain"
)

// ServiceID identifies a metered paid feature.
type ServiceID string

const (
	ServiceSEOAnalysis     ServiceID = "seo_analysis"
	ServiceAIGeneration    ServiceID = "ai_generation"
	ServiceAIBulkGenerate  ServiceID = "ai_bulk_generate"
	ServiceKeywordResearch ServiceID = "keyword_research"
	ServiceImageAltText    ServiceID = "image_alt_text"
	ServiceCompetitorScan  ServiceID = "competitor_scan"
)

// ServicePrice is an admin-managed cost override for one service.
type ServicePrice struct {
	Service   ServiceID
	Cost      int64 // points
	Category  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewServicePrice validates and constructs a price entry.
func NewServicePrice(service ServiceID, cost int64, category string) (*ServicePrice, error) {
	if service == "" || cost <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &ServicePrice{
		Service:   service,
		Cost:      cost,
		Category:  category,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DefaultServiceCosts is the static fallback table consulted when no active
// override exists for a service. Costs here are frozen into each consume
// transaction's metadata at deduction time.
var DefaultServiceCosts = map[ServiceID]int64{
	ServiceSEOAnalysis:     30,
	ServiceAIGeneration:    10,
	ServiceAIBulkGenerate:  50,
	ServiceKeywordResearch: 20,
	ServiceImageAltText:    5,
	ServiceCompetitorScan:  40,
}
