// Package platform classifies the client runtime environment and derives
// capture constraints from the resulting platform class.
package platform

import "strings"

// Class is the coarse platform category of a capture client.
// It is derived once per session and never re-probed mid-recording.
type Class string

// Supported platform classes.
const (
	// ClassIOS covers iPhone and iPad devices, including iPadOS builds
	// that report a desktop user agent but expose multi-touch.
	ClassIOS Class = "ios"
	// ClassAndroid covers Android phones and tablets.
	ClassAndroid Class = "android"
	// ClassGenericMobile covers touch devices that are neither iOS nor Android.
	ClassGenericMobile Class = "mobile"
	// ClassDesktop is the default when no mobile signal is present.
	ClassDesktop Class = "desktop"
)

// String returns the class as its wire representation.
func (c Class) String() string {
	return string(c)
}

// IsMobile reports whether the class is a mobile platform.
func (c Class) IsMobile() bool {
	return c == ClassIOS || c == ClassAndroid || c == ClassGenericMobile
}

// mobileViewportMaxWidth is the widest viewport still treated as a mobile signal.
const mobileViewportMaxWidth = 820

// Signals are the environment facts declared by the capture client.
// They are inspected, never mutated.
type Signals struct {
	// UserAgent is the declared OS/device identifier string.
	UserAgent string `json:"user_agent"`
	// HasTouch reports whether a touch input source is present.
	HasTouch bool `json:"has_touch"`
	// MaxTouchPoints is the number of simultaneous touch points supported.
	MaxTouchPoints int `json:"max_touch_points"`
	// ViewportWidth is the client viewport width in CSS pixels.
	ViewportWidth int `json:"viewport_width"`
}

// Classify derives the platform class from the declared signals.
// It is pure and side-effect free: no error cases, always returns a class,
// defaulting to Desktop when no mobile signal is detected.
func Classify(sig Signals) Class {
	ua := strings.ToLower(sig.UserAgent)

	switch {
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipod"), strings.Contains(ua, "ipad"):
		return ClassIOS
	case strings.Contains(ua, "macintosh") && sig.MaxTouchPoints > 1:
		// iPadOS masquerades as macOS but real Macs report no touch points.
		return ClassIOS
	case strings.Contains(ua, "android"):
		return ClassAndroid
	}

	if sig.HasTouch && sig.ViewportWidth > 0 && sig.ViewportWidth <= mobileViewportMaxWidth {
		return ClassGenericMobile
	}

	return ClassDesktop
}
