// Package gesture recognizes the hand challenge shown during login.
package gesture

import "liveauth/internal/domain"

// Classifier decides whether a single hand satisfies a challenge.
type Classifier func(hand domain.LandmarkSet) bool

// IsVictory reports whether hand shows the victory sign: the index fingertip
// is above the middle fingertip and the ring fingertip is below it, in image
// coordinates (y grows downwards). A missing hand or landmark yields false.
func IsVictory(hand domain.LandmarkSet) bool {
	index, ok := hand.Lookup(domain.HandIndexFingerTip)
	if !ok {
		return false
	}
	middle, ok := hand.Lookup(domain.HandMiddleFingerTip)
	if !ok {
		return false
	}
	ring, ok := hand.Lookup(domain.HandRingFingerTip)
	if !ok {
		return false
	}
	return index.Y < middle.Y && ring.Y > middle.Y
}

// AnyHand applies c to every detected hand and reports whether one of them
// satisfies it.
func AnyHand(c Classifier, hands []domain.LandmarkSet) bool {
	for _, h := range hands {
		if c(h) {
			return true
		}
	}
	return false
}
