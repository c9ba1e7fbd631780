package rtc

// Profile names a call quality tier a host can publish at.
type Profile string

const (
	ProfileHigh     Profile = "high"
	ProfileBalanced Profile = "balanced"
	ProfileLow      Profile = "low"
)

type VideoConstraints struct {
	Width     int
	Height    int
	FrameRate int
}

// Constraints maps a profile to its target capture parameters.
// Unknown profiles fall back to balanced.
func Constraints(p Profile) VideoConstraints {
	switch p {
	case ProfileHigh:
		return VideoConstraints{Width: 1920, Height: 1080, FrameRate: 30}
	case ProfileLow:
		return VideoConstraints{Width: 640, Height: 360, FrameRate: 15}
	default:
		return VideoConstraints{Width: 1280, Height: 720, FrameRate: 24}
	}
}
