package dose

import (
	"time"
)

// Profile holds the physiological inputs to the rate formula.
type Profile struct {
	SkinType  SkinType  `json:"skinType"`
	Clothing  Clothing  `json:"clothing"`
	Sunscreen Sunscreen `json:"sunscreen"`
	Age       *int      `json:"age,omitempty"`

	// SevenDayAverage is the average daily dose (IU) over the last week.
	// It is derived from health history and is not persisted with the profile.
	SevenDayAverage *float64 `json:"-"`

	// SkinTypeFromHealth and AgeFromHealth mark fields supplied by the
	// health capability. They take precedence until the user overrides them.
	SkinTypeFromHealth bool `json:"skinTypeFromHealth"`
	AgeFromHealth      bool `json:"ageFromHealth"`
}

// DefaultProfile returns the profile used before the user configures anything.
func DefaultProfile() Profile {
	return Profile{
		SkinType:  SkinType3,
		Clothing:  ClothingLight,
		Sunscreen: SunscreenNone,
	}
}

// Validate checks the enumerated fields.
func (p Profile) Validate() error {
	if !p.SkinType.Valid() {
		return ErrInvalidSkinType
	}
	if !p.Clothing.Valid() {
		return ErrInvalidClothing
	}
	if !p.Sunscreen.Valid() {
		return ErrInvalidSunscreen
	}
	return nil
}

// Factors is the breakdown of one rate evaluation.
type Factors struct {
	UV         float64 `json:"uv"`
	Clothing   float64 `json:"clothing"`
	Sunscreen  float64 `json:"sunscreen"`
	SkinType   float64 `json:"skinType"`
	Age        float64 `json:"age"`
	TimeOfDay  float64 `json:"timeOfDay"`
	Adaptation float64 `json:"adaptation"`
}

// Product multiplies every factor together.
func (f Factors) Product() float64 {
	return f.UV * f.Clothing * f.Sunscreen * f.SkinType * f.Age * f.TimeOfDay * f.Adaptation
}

// FactorsAt evaluates every factor of the rate formula for uv at local time at.
func FactorsAt(uv float64, p Profile, at time.Time) Factors {
	return Factors{
		UV:         UVFactor(uv),
		Clothing:   p.Clothing.Factor(),
		Sunscreen:  p.Sunscreen.Factor(),
		SkinType:   p.SkinType.Factor(),
		Age:        AgeFactor(p.Age),
		TimeOfDay:  TimeOfDayFactor(fractionalHour(at)),
		Adaptation: AdaptationFactor(p.SevenDayAverage),
	}
}

// HourlyRate returns the instantaneous synthesis rate in IU/hour.
func HourlyRate(uv float64, p Profile, at time.Time) float64 {
	if uv <= 0 {
		return 0
	}
	return BaseRate * FactorsAt(uv, p, at).Product()
}

// CalculateVitaminD returns the dose for a past exposure of the given length.
// The profile's current adaptation factor is used, not one reconstructed for
// the historical time.
func CalculateVitaminD(uv, exposureMinutes float64, p Profile, at time.Time) float64 {
	if exposureMinutes <= 0 {
		return 0
	}
	return HourlyRate(uv, p, at) * (exposureMinutes / 60)
}

func fractionalHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
