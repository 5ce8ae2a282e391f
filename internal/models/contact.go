package models

import "time"

// DirectoryContact is a cached name lookup for a phone number, refreshed
// whenever a change notification carries profile data. CachedAt drives
// staleness checks in the contact directory.
type DirectoryContact struct {
	Phone       string
	DisplayName string
	PushName    string
	NumberID    string
	CachedAt    time.Time
}

// BestName returns the most presentable name on record, falling back to
// the phone number when no name was ever observed.
func (c *DirectoryContact) BestName() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.PushName != "" {
		return c.PushName
	}
	return c.Phone
}
