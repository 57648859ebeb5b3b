package workflow

import "github.com/spec-kit/transport-portal/internal/domain"

// Stats summarizes a set of applications. Groups with no records are absent
// from the maps; callers treat a missing key as zero.
type Stats struct {
	ByStatus          map[domain.ApplicationStatus]int `json:"byStatus"`
	ByType            map[string]int                   `json:"byType"`
	ByApplicationType map[domain.ApplicationType]int   `json:"byApplicationType"`
	TotalCount        int                              `json:"totalCount"`
	TotalRevenue      int64                            `json:"totalRevenue"`
}

// Aggregate counts records per status, category and request type and sums
// the fee totals of paid records.
func Aggregate(records []domain.Application) Stats {
	stats := Stats{
		ByStatus:          map[domain.ApplicationStatus]int{},
		ByType:            map[string]int{},
		ByApplicationType: map[domain.ApplicationType]int{},
	}
	for _, rec := range records {
		stats.TotalCount++
		stats.ByStatus[rec.Status]++
		stats.ByApplicationType[rec.ApplicationType]++
		if rec.Details != nil {
			stats.ByType[rec.Details.Category()]++
		}
		if rec.Fees.PaymentStatus == domain.PaymentPaid {
			stats.TotalRevenue += rec.Fees.Total
		}
	}
	return stats
}
