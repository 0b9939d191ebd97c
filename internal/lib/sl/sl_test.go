package sl

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/billing-gate/internal/config"
)

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	attr = Err(nil)
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "", attr.Value.String())
}

func TestEvent(t *testing.T) {
	attr := Event("evt_1", "checkout_completed")
	assert.Equal(t, "event", attr.Key)
	assert.Equal(t, slog.KindGroup, attr.Value.Kind())
	assert.Len(t, attr.Value.Group(), 2)
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		env       string
		wantJSON  bool
		wantDebug bool
	}{
		{env: config.EnvLocal, wantDebug: true},
		{env: config.EnvDev, wantJSON: true, wantDebug: true},
		{env: config.EnvProd, wantJSON: true},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			var buf bytes.Buffer
			log := SetupLogger(tt.env, &buf)

			assert.Equal(t, tt.wantDebug, log.Enabled(context.Background(), slog.LevelDebug))
			log.Info("hello", Company("c-1"))
			assert.Equal(t, tt.wantJSON, strings.HasPrefix(buf.String(), "{"))
			assert.Contains(t, buf.String(), "c-1")
		})
	}
}
