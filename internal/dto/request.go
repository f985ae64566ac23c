package dto

// UploadQuery holds the optional share settings of an upload. Both camelCase
// and snake_case names are accepted, from the query string or the form.
type UploadQuery struct {
	MaxDownloads        *int `form:"maxDownloads"`
	MaxDownloadsSnake   *int `form:"max_downloads"`
	ExpiresInHours      *int `form:"expiresInHours"`
	ExpiresInHoursSnake *int `form:"expires_in_hours"`
}

// MaxDownloadsValue returns the requested download limit, or nil for the default.
func (q UploadQuery) MaxDownloadsValue() *int {
	if q.MaxDownloads != nil {
		return q.MaxDownloads
	}
	return q.MaxDownloadsSnake
}

// ExpiresInHoursValue returns the requested lifetime, or nil for the default.
func (q UploadQuery) ExpiresInHoursValue() *int {
	if q.ExpiresInHours != nil {
		return q.ExpiresInHours
	}
	return q.ExpiresInHoursSnake
}
