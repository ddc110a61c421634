package services

import (
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"
)

const (
	usersCollection            = "users"
	referralsCollection        = "referrals"
	withdrawRequestsCollection = "withdrawRequests"
	depositRequestsCollection  = "depositRequests"
	videoPromotionsCollection  = "videoPromotions"
	settingsPath               = "admin"
)

func userPath(uid string) (string, error) {
	p, err := store.Join(usersCollection, uid)
	if err != nil {
		return "", invalid("uid", "must be a non-empty id without '/'")
	}
	return p, nil
}

func referralPath(inviterUID, referredUID string) (string, error) {
	p, err := store.Join(usersCollection, inviterUID, referralsCollection, referredUID)
	if err != nil {
		return "", invalid("uid", "must be a non-empty id without '/'")
	}
	return p, nil
}

func referralsOf(inviterUID string) (string, error) {
	p, err := store.Join(usersCollection, inviterUID, referralsCollection)
	if err != nil {
		return "", invalid("uid", "must be a non-empty id without '/'")
	}
	return p, nil
}

func userVideoPromotionPath(uid, promoID string) (string, error) {
	p, err := store.Join(usersCollection, uid, videoPromotionsCollection, promoID)
	if err != nil {
		return "", invalid("id", "must be a non-empty id without '/'")
	}
	return p, nil
}

func userVideoPromotions(uid string) (string, error) {
	p, err := store.Join(usersCollection, uid, videoPromotionsCollection)
	if err != nil {
		return "", invalid("uid", "must be a non-empty id without '/'")
	}
	return p, nil
}

func requestPath(collection, id string) (string, error) {
	p, err := store.Join(collection, id)
	if err != nil {
		return "", invalid("id", "must be a non-empty id without '/'")
	}
	return p, nil
}

// commissionKey marks a commission paid to an inviter for one withdrawal.
func commissionKey(withdrawID string) string {
	return "commission/" + withdrawID
}

// inviteKey marks that an inviter's totalInvites already counts a referred user.
func inviteKey(referredUID string) string {
	return models.InviteMarkerPrefix + referredUID
}

// verifiedKey marks that an inviter's verified counter counts a referred user.
func verifiedKey(referredUID string) string {
	return models.VerifiedMarkerPrefix + referredUID
}
