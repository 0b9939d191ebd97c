package access

import (
	"strings"

	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// BypassPolicy решает, пропускать ли вызывающего мимо проверки подписки.
type BypassPolicy interface {
	IsBypassed(caller *models.Caller) bool
}

type neverBypass struct{}

func (neverBypass) IsBypassed(*models.Caller) bool { return false }

type allowListBypass struct {
	userUIDs map[string]struct{}
}

func (p allowListBypass) IsBypassed(caller *models.Caller) bool {
	if caller == nil || caller.UserUID == "" {
		return false
	}
	_, ok := p.userUIDs[caller.UserUID]
	return ok
}

// nonProductionEnvs — окружения, в которых обход вообще допустим.
// Любое другое значение, включая пустое, считается продакшеном.
var nonProductionEnvs = map[string]struct{}{
	"local": {},
	"dev":   {},
	"test":  {},
}

// NewBypassPolicy строит политику один раз при старте процесса.
// В продакшене всегда возвращается политика, которая никого не пропускает.
func NewBypassPolicy(env string, enabled bool, userUIDs []string) BypassPolicy {
	if !enabled || !IsNonProduction(env) {
		return neverBypass{}
	}
	set := make(map[string]struct{}, len(userUIDs))
	for _, uid := range userUIDs {
		if uid = strings.TrimSpace(uid); uid != "" {
			set[uid] = struct{}{}
		}
	}
	if len(set) == 0 {
		return neverBypass{}
	}
	return allowListBypass{userUIDs: set}
}

// IsNonProduction сообщает, считается ли окружение непродакшеном.
func IsNonProduction(env string) bool {
	_, ok := nonProductionEnvs[strings.ToLower(strings.TrimSpace(env))]
	return ok
}
