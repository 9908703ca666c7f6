package model

import "time"

type QuotaTier int

const (
	TierNewUser QuotaTier = iota
	TierVerified
	TierContributor
	TierPowerUser
)

func (t QuotaTier) String() string {
	switch t {
	case TierVerified:
		return "VERIFIED"
	case TierContributor:
		return "CONTRIBUTOR"
	case TierPowerUser:
		return "POWER_USER"
	default:
		return "NEW_USER"
	}
}

func (t QuotaTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// TierRule 累计通过照片数 >= Threshold 即进入该档
type TierRule struct {
	Tier       QuotaTier
	Threshold  int64
	DailyLimit int64
}

type QuotaStatus struct {
	Tier           QuotaTier `json:"tier"`
	ApprovedCount  int64     `json:"approved_count"`
	DailyLimit     int64     `json:"daily_limit"`
	UsedToday      int64     `json:"used_today"`
	RemainingToday int64     `json:"remaining_today"`
	Allowed        bool      `json:"allowed"`
	ResetAt        time.Time `json:"reset_at"`
	NextTierHint   string    `json:"next_tier_hint,omitempty"`
}
