// Package quota holds the subscription tier policy: per-request-type monthly
// caps with a -1 sentinel for unlimited. The table is static and read-only
// after process start.
package quota

// Request types as recorded in usage counters and the ledger.
const (
	TypeDescription = "description"
	TypeTranslation = "translation"
	TypeChat        = "chat"
)

type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// ParseTier normalizes a stored subscription value; anything unknown is
// treated as free rather than failing the request.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierStarter, TierProfessional, TierEnterprise:
		return Tier(s)
	default:
		return TierFree
	}
}

// Unlimited is the cap sentinel meaning no monthly limit.
const Unlimited = -1

// Limits are monthly caps per request type.
type Limits struct {
	Descriptions int64
	Translations int64
	ChatQueries  int64
}

func (l Limits) For(requestType string) int64 {
	switch requestType {
	case TypeTranslation:
		return l.Translations
	case TypeChat:
		return l.ChatQueries
	default:
		return l.Descriptions
	}
}

type Policy struct {
	limits map[Tier]Limits
}

// DefaultPolicy mirrors the published subscription plans.
func DefaultPolicy() *Policy {
	return &Policy{limits: map[Tier]Limits{
		TierFree:         {Descriptions: 10, Translations: 5, ChatQueries: 20},
		TierStarter:      {Descriptions: 200, Translations: 100, ChatQueries: 500},
		TierProfessional: {Descriptions: 1000, Translations: 500, ChatQueries: 2000},
		TierEnterprise:   {Descriptions: Unlimited, Translations: Unlimited, ChatQueries: Unlimited},
	}}
}

// Allow decides whether a request is within quota. countAfterReserve is the
// tenant's usage count for the period including the current request; callers
// atomically reserve a unit first and roll back on deny, so two racing
// requests can never both slip under the cap.
func (p *Policy) Allow(tier Tier, requestType string, countAfterReserve int64) bool {
	limits, ok := p.limits[tier]
	if !ok {
		limits = p.limits[TierFree]
	}
	cap := limits.For(requestType)
	if cap == Unlimited {
		return true
	}
	return countAfterReserve <= cap
}

// Cap exposes the raw cap for a tier and request type, mainly for the usage
// report surface.
func (p *Policy) Cap(tier Tier, requestType string) int64 {
	limits, ok := p.limits[tier]
	if !ok {
		limits = p.limits[TierFree]
	}
	return limits.For(requestType)
}
