// Package dose models vitamin D synthesis from UV exposure: the physiological
// factor tables, the instantaneous rate formula and the session accumulator.
package dose

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Rate formula constants.
const (
	// BaseRate is the synthesis rate in IU/hour for near-full-body exposure
	// at reference conditions.
	BaseRate = 21000.0

	// UVHalfMax is the UV index at which uvFactor reaches half of UVMaxFactor.
	UVHalfMax = 4.0

	// UVMaxFactor is the asymptote of the UV saturation curve.
	UVMaxFactor = 3.0

	// SolarNoonHour is the fixed local hour used as solar noon.
	SolarNoonHour = 13.0

	// MinBurnUV is the floor applied to the UV index when deriving burn time.
	MinBurnUV = 0.1
)

// Profile errors.
var (
	ErrInvalidSkinType  = errors.New("invalid skin type")
	ErrInvalidClothing  = errors.New("invalid clothing level")
	ErrInvalidSunscreen = errors.New("invalid sunscreen level")
)

// SkinType is a Fitzpatrick-like ordinal from 1 (very fair) to 6 (deeply pigmented).
type SkinType int

const (
	SkinType1 SkinType = iota + 1
	SkinType2
	SkinType3
	SkinType4
	SkinType5
	SkinType6
)

// SkinTypes lists every valid skin type in order.
var SkinTypes = []SkinType{SkinType1, SkinType2, SkinType3, SkinType4, SkinType5, SkinType6}

// Valid reports whether s is within 1..6.
func (s SkinType) Valid() bool {
	return s >= SkinType1 && s <= SkinType6
}

// Factor returns the relative synthesis efficiency for the skin type.
// Lighter skin synthesizes faster.
func (s SkinType) Factor() float64 {
	switch s {
	case SkinType1:
		return 1.25
	case SkinType2:
		return 1.10
	case SkinType3:
		return 1.00
	case SkinType4:
		return 0.70
	case SkinType5:
		return 0.40
	case SkinType6:
		return 0.20
	default:
		return 1.00
	}
}

// MEDMinutes returns the minutes of exposure at UV index 1 that produce one
// minimal erythema dose.
func (s SkinType) MEDMinutes() float64 {
	switch s {
	case SkinType1:
		return 150
	case SkinType2:
		return 250
	case SkinType3:
		return 425
	case SkinType4:
		return 600
	case SkinType5:
		return 850
	case SkinType6:
		return 1100
	default:
		return 425
	}
}

// BurnTimeMinutes returns the minutes until one MED at the given UV index.
func (s SkinType) BurnTimeMinutes(uv float64) float64 {
	return s.MEDMinutes() / math.Max(uv, MinBurnUV)
}

// Clothing describes how much skin is exposed.
type Clothing string

const (
	ClothingNone     Clothing = "none"
	ClothingMinimal  Clothing = "minimal"
	ClothingLight    Clothing = "light"
	ClothingModerate Clothing = "moderate"
	ClothingHeavy    Clothing = "heavy"
)

// Valid reports whether c is a known clothing level.
func (c Clothing) Valid() bool {
	switch c {
	case ClothingNone, ClothingMinimal, ClothingLight, ClothingModerate, ClothingHeavy:
		return true
	default:
		return false
	}
}

// Factor returns the exposed-skin fraction for the clothing level.
func (c Clothing) Factor() float64 {
	switch c {
	case ClothingNone:
		return 1.0
	case ClothingMinimal:
		return 0.80
	case ClothingLight:
		return 0.40
	case ClothingModerate:
		return 0.15
	case ClothingHeavy:
		return 0.05
	default:
		return 0.40
	}
}

// Description returns a short human readable label.
func (c Clothing) Description() string {
	switch c {
	case ClothingNone:
		return "Nude"
	case ClothingMinimal:
		return "Minimal (swimwear)"
	case ClothingLight:
		return "Light (shorts, tank top)"
	case ClothingModerate:
		return "Moderate (shorts, t-shirt)"
	case ClothingHeavy:
		return "Heavy (long sleeves, pants)"
	default:
		return string(c)
	}
}

// Sunscreen is an SPF-like protection level.
type Sunscreen string

const (
	SunscreenNone   Sunscreen = "none"
	SunscreenSPF15  Sunscreen = "spf15"
	SunscreenSPF30  Sunscreen = "spf30"
	SunscreenSPF50  Sunscreen = "spf50"
	SunscreenSPF100 Sunscreen = "spf100"
)

// Valid reports whether s is a known sunscreen level.
func (s Sunscreen) Valid() bool {
	switch s {
	case SunscreenNone, SunscreenSPF15, SunscreenSPF30, SunscreenSPF50, SunscreenSPF100:
		return true
	default:
		return false
	}
}

// Factor returns the fraction of UV-B transmitted through the sunscreen.
func (s Sunscreen) Factor() float64 {
	switch s {
	case SunscreenNone:
		return 1.0
	case SunscreenSPF15:
		return 0.07
	case SunscreenSPF30:
		return 0.03
	case SunscreenSPF50:
		return 0.02
	case SunscreenSPF100:
		return 0.01
	default:
		return 1.0
	}
}

// ParseSkinType converts an integer ordinal into a SkinType.
func ParseSkinType(v int) (SkinType, error) {
	s := SkinType(v)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSkinType, v)
	}
	return s, nil
}

// ParseClothing converts a string into a Clothing level.
func ParseClothing(v string) (Clothing, error) {
	c := Clothing(strings.ToLower(strings.TrimSpace(v)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidClothing, v)
	}
	return c, nil
}

// ParseSunscreen converts a string into a Sunscreen level.
func ParseSunscreen(v string) (Sunscreen, error) {
	s := Sunscreen(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSunscreen, v)
	}
	return s, nil
}

// UVFactor is the saturating response of synthesis to the UV index.
// It is 0 at uv=0, strictly increasing and bounded by UVMaxFactor.
func UVFactor(uv float64) float64 {
	if uv <= 0 {
		return 0
	}
	return (uv * UVMaxFactor) / (UVHalfMax + uv)
}

// AgeFactor reduces synthesis with age: 1.0 up to 20, falling linearly to
// 0.25 at 70 and staying there. A nil age means no penalty.
func AgeFactor(age *int) float64 {
	if age == nil || *age <= 20 {
		return 1.0
	}
	return math.Max(0.25, 1.0-0.015*float64(*age-20))
}

// TimeOfDayFactor weights synthesis by distance from a fixed solar noon.
func TimeOfDayFactor(hour float64) float64 {
	f := math.Exp(-0.2 * math.Abs(hour-SolarNoonHour))
	return math.Min(1.0, math.Max(0.1, f))
}

// AdaptationFactor derives a factor from the 7-day average daily dose.
// Nil history yields 1.0.
func AdaptationFactor(sevenDayAverage *float64) float64 {
	if sevenDayAverage == nil {
		return 1.0
	}
	avg := *sevenDayAverage
	switch {
	case avg <= 1000:
		return 0.8
	case avg >= 10000:
		return 1.2
	default:
		return 0.8 + (avg-1000)/9000*0.4
	}
}
