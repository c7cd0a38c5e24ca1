package openmeteo

// forecastResponse is the subset of the forecast API response we decode.
// Arrays are pointers so a missing field can be told apart from an empty one.
type forecastResponse struct {
	Latitude             float64 `json:"latitude"`
	Longitude            float64 `json:"longitude"`
	Elevation            float64 `json:"elevation"`
	UTCOffsetSeconds     int     `json:"utc_offset_seconds"`
	Timezone             string  `json:"timezone"`
	TimezoneAbbreviation string  `json:"timezone_abbreviation"`

	Daily  *dailyBlock  `json:"daily"`
	Hourly *hourlyBlock `json:"hourly"`
}

type dailyBlock struct {
	Time          *[]string   `json:"time"`
	UVIndexMax    *[]*float64 `json:"uv_index_max"`
	UVClearSkyMax *[]*float64 `json:"uv_index_clear_sky_max"`
	Sunrise       *[]string   `json:"sunrise"`
	Sunset        *[]string   `json:"sunset"`
}

type hourlyBlock struct {
	Time       *[]string   `json:"time"`
	UVIndex    *[]*float64 `json:"uv_index"`
	CloudCover *[]*float64 `json:"cloud_cover"`
}

// errorResponse is returned by the API with a 400 status.
type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}
