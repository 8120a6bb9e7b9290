package model

// Session is one entry in the backend's session directory.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"` // "active", "idle", "archived"
	CreatedTS int64  `json:"created_ts"` // µs since epoch
	UpdatedAt int64  `json:"updated_at"` // µs since epoch
}

// Active reports whether the session should be followed.
func (s Session) Active() bool {
	return s.Status == "active"
}
