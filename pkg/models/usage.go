package models

// StopReason classifies why an assistant turn ended.
type StopReason string

const (
	StopReasonStop     StopReason = "STOP"
	StopReasonLength   StopReason = "LENGTH"
	StopReasonToolUse  StopReason = "TOOL_USE"
	StopReasonError    StopReason = "ERROR"
	StopReasonAborted  StopReason = "ABORTED"
)

// UsageCost is the USD cost breakdown matching Usage's token subfields.
type UsageCost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
	Total      float64 `json:"total"`
}

// Usage records token accounting for one assistant turn.
type Usage struct {
	Input        int       `json:"input"`
	Output       int       `json:"output"`
	CacheRead    int       `json:"cacheRead"`
	CacheWrite   int       `json:"cacheWrite"`
	TotalTokens  int       `json:"totalTokens"`
	Cost         UsageCost `json:"cost"`
}

// IsZero reports whether no usage was ever recorded for this turn.
func (u Usage) IsZero() bool {
	return u.Input == 0 && u.Output == 0 && u.CacheRead == 0 && u.CacheWrite == 0 && u.TotalTokens == 0
}

// CalculateContextTokens returns usage.TotalTokens if positive, else the
// sum of the four subfields (spec 4.I calculateContextTokens).
func CalculateContextTokens(u Usage) int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.Input + u.Output + u.CacheRead + u.CacheWrite
}
