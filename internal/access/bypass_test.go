package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/billing-gate/internal/models"
)

func TestNewBypassPolicy(t *testing.T) {
	listed := &models.Caller{UserUID: "u-1"}
	other := &models.Caller{UserUID: "u-2"}

	tests := []struct {
		name       string
		env        string
		enabled    bool
		uids       []string
		caller     *models.Caller
		wantBypass bool
	}{
		{"prod never bypasses even when configured", "prod", true, []string{"u-1"}, listed, false},
		{"production spelled out", "Production", true, []string{"u-1"}, listed, false},
		{"empty env is treated as production", "", true, []string{"u-1"}, listed, false},
		{"unknown env is treated as production", "staging", true, []string{"u-1"}, listed, false},
		{"local listed caller", "local", true, []string{"u-1"}, listed, true},
		{"dev listed caller", "dev", true, []string{" u-1 "}, listed, true},
		{"local caller not on list", "local", true, []string{"u-1"}, other, false},
		{"local but disabled", "local", false, []string{"u-1"}, listed, false},
		{"local with empty list", "local", true, nil, listed, false},
		{"no caller", "local", true, []string{"u-1"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewBypassPolicy(tt.env, tt.enabled, tt.uids)
			assert.Equal(t, tt.wantBypass, p.IsBypassed(tt.caller))
		})
	}
}

func TestNewBypassPolicy_ProdIsStructurallyNever(t *testing.T) {
	p := NewBypassPolicy("prod", true, []string{"u-1"})
	_, ok := p.(neverBypass)
	assert.True(t, ok)
}
