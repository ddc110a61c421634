package models

// ChallengeCategory is one of the counters tracked for tiered one-time rewards.
type ChallengeCategory string

const (
	ChallengePTCAds          ChallengeCategory = "ptcAds"
	ChallengeSurfAds         ChallengeCategory = "surfAds"
	ChallengeVerifiedInvites ChallengeCategory = "verifiedInvites"
)

var ChallengeCategories = []ChallengeCategory{
	ChallengePTCAds,
	ChallengeSurfAds,
	ChallengeVerifiedInvites,
}

func (c ChallengeCategory) Valid() bool {
	for _, known := range ChallengeCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ChallengeProgress is the count for a category plus the tier keys already collected.
type ChallengeProgress struct {
	Count            int64           `json:"count"`
	RewardsCollected map[string]bool `json:"rewards_collected"`
}

// ChallengeTier is a static tier definition. Key is stable across deployments.
type ChallengeTier struct {
	Key    string `yaml:"key" json:"key"`
	Label  string `yaml:"label" json:"label"`
	Target int64  `yaml:"target" json:"target"`
	Reward int64  `yaml:"reward" json:"reward"`
}

// AdKind selects which ad challenge counter an ad watch advances.
type AdKind string

const (
	AdKindPTC  AdKind = "ptc"
	AdKindSurf AdKind = "surf"
)

func (k AdKind) Category() (ChallengeCategory, bool) {
	switch k {
	case AdKindPTC:
		return ChallengePTCAds, true
	case AdKindSurf:
		return ChallengeSurfAds, true
	}
	return "", false
}
