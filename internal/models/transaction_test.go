package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from TransactionStatus
		to   TransactionStatus
		want bool
	}{
		{"pending to success", StatusPending, StatusSuccess, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"success is terminal", StatusSuccess, StatusFailed, false},
		{"success cannot reopen", StatusSuccess, StatusPending, false},
		{"failed is terminal", StatusFailed, StatusSuccess, false},
		{"failed cannot reopen", StatusFailed, StatusPending, false},
		{"unknown status", TransactionStatus("reversed"), StatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestIsSpendType(t *testing.T) {
	for _, st := range SpendTypes {
		assert.True(t, IsSpendType(st), "%s should be purchasable", st)
	}
	assert.False(t, IsSpendType(TypeFunding))
	assert.False(t, IsSpendType(TypeRefund))
}

func TestAppConfigTypeDisabled(t *testing.T) {
	cfg := AppConfig{StopSomeTransactions: []TransactionType{TypeData, TypeExam}}

	assert.True(t, cfg.TypeDisabled(TypeData))
	assert.True(t, cfg.TypeDisabled(TypeExam))
	assert.False(t, cfg.TypeDisabled(TypeAirtime))
}
