package models

// LocationPermission is the location permission reported with a fix.
type LocationPermission string

const (
	LocationPermissionGranted LocationPermission = "granted"
	LocationPermissionDenied  LocationPermission = "denied"
)

// LocationInput is a location fix from the companion.
type LocationInput struct {
	Lat        *float64           `json:"lat"`
	Lon        *float64           `json:"lon"`
	Altitude   *float64           `json:"altitude,omitempty"`
	Label      string             `json:"label,omitempty"`
	Permission LocationPermission `json:"permission,omitempty"`
}

// SunTimes is a sunrise and sunset pair.
type SunTimes struct {
	Sunrise   *Timestamp `json:"sunrise,omitempty"`
	Sunset    *Timestamp `json:"sunset,omitempty"`
	Estimated bool       `json:"estimated"`
}

// UVReport is the published UV state.
type UVReport struct {
	Mode      string `json:"mode"`
	Offline   bool   `json:"offline"`
	HasNoData bool   `json:"hasNoData"`

	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Altitude      float64 `json:"altitude"`
	LocationLabel string  `json:"locationLabel,omitempty"`

	CurrentUV          float64 `json:"currentUv"`
	TodayMaxUV         float64 `json:"todayMaxUv"`
	TomorrowMaxUV      float64 `json:"tomorrowMaxUv"`
	TodayClearSkyMaxUV float64 `json:"todayClearSkyMaxUv"`
	AltitudeMultiplier float64 `json:"altitudeMultiplier"`
	CloudCover         float64 `json:"cloudCover"`
	VitaminDWinter     bool    `json:"vitaminDWinter"`

	HourlyUV    []float64 `json:"hourlyUv"`
	HourlyCloud []float64 `json:"hourlyCloud"`

	Today    SunTimes  `json:"today"`
	Tomorrow SunTimes  `json:"tomorrow"`
	Estimate *SunTimes `json:"sunEstimate,omitempty"`

	// BurnMinutes is keyed by skin type, "1" to "6".
	BurnMinutes map[string]float64 `json:"burnMinutes"`

	MoonPhase        string  `json:"moonPhase"`
	MoonIllumination float64 `json:"moonIllumination"`

	Source    string     `json:"source,omitempty"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// ProfileInput holds profile edits; omitted fields are unchanged.
type ProfileInput struct {
	SkinType  *int    `json:"skinType,omitempty"`
	Clothing  *string `json:"clothing,omitempty"`
	Sunscreen *string `json:"sunscreen,omitempty"`
	Age       *int    `json:"age,omitempty"`
}

// Profile is the physiological profile.
type Profile struct {
	SkinType            int      `json:"skinType"`
	Clothing            string   `json:"clothing"`
	ClothingDescription string   `json:"clothingDescription"`
	Sunscreen           string   `json:"sunscreen"`
	Age                 *int     `json:"age,omitempty"`
	SevenDayAverageIU   *float64 `json:"sevenDayAverageIu,omitempty"`
	SkinTypeFromHealth  bool     `json:"skinTypeFromHealth"`
	AgeFromHealth       bool     `json:"ageFromHealth"`
}

// Session is the accumulator state.
type Session struct {
	State       string     `json:"state"`
	ID          string     `json:"id,omitempty"`
	StartedAt   *Timestamp `json:"startedAt,omitempty"`
	DoseIU      float64    `json:"doseIu"`
	MEDFraction float64    `json:"medFraction"`
	LastUV      float64    `json:"lastUv"`
	CurrentRate float64    `json:"currentRate"`
	BurnWarned  bool       `json:"burnWarned"`
	Running     bool       `json:"running"`
}

// ExposureInput is a retroactive exposure.
type ExposureInput struct {
	UV      *float64   `json:"uv,omitempty"`
	Minutes float64    `json:"minutes"`
	At      *Timestamp `json:"at,omitempty"`
}

// Exposure is the computed dose of a retroactive exposure.
type Exposure struct {
	DoseIU  float64   `json:"doseIu"`
	Minutes float64   `json:"minutes"`
	At      Timestamp `json:"at"`
}

// Widget is the companion projection.
type Widget struct {
	CurrentUV          float64    `json:"currentUv"`
	TodayTotalIU       float64    `json:"todayTotalIu"`
	Tracking           bool       `json:"tracking"`
	CurrentRate        float64    `json:"currentRate"`
	LocationLabel      string     `json:"locationLabel"`
	Altitude           float64    `json:"altitude"`
	AltitudeMultiplier float64    `json:"altitudeMultiplier"`
	CloudCover         float64    `json:"cloudCover"`
	MoonPhase          string     `json:"moonPhase"`
	Mode               string     `json:"mode"`
	UpdatedAt          *Timestamp `json:"updatedAt,omitempty"`
}
