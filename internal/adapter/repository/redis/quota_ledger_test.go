package redis

import (
	"testing"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

func TestPeriodKey(t *testing.T) {
	key := domain.QuotaKey{Service: "Enterprise", Month: domain.Month{Year: 2025, Month: 1}}
	if got := periodKey(key); got != "quota:Enterprise:2025-01" {
		t.Errorf("expected quota:Enterprise:2025-01, got %s", got)
	}
}
