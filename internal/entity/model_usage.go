package entity

// ModelUsage tracks sliding-window request counters for one model. One row per
// model name; rows are created lazily on first claim and persist across runs.
type ModelUsage struct {
	ModelName      string `json:"model_name"`
	DayKey         string `json:"day_key"`         // YYYY-MM-DD in the quota reset timezone
	MinuteStartMS  int64  `json:"minute_start_ms"` // epoch millis of the current minute window
	RequestsMinute int    `json:"requests_minute"`
	RequestsToday  int    `json:"requests_today"`
}

// Clone returns a copy safe to hand to a background writer.
func (u *ModelUsage) Clone() *ModelUsage {
	c := *u
	return &c
}
