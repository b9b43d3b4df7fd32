package store

import "time"

// User roles. Admins manage settings and household members; parents manage
// chores and allowance; children only complete chores.
const (
	RoleAdmin  = "admin"
	RoleParent = "parent"
	RoleChild  = "child"
)

// User is a household member.
type User struct {
	ID             string    `gorm:"column:id;primaryKey" json:"id"`
	Username       string    `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	PasswordHash   string    `gorm:"column:password_hash;not null" json:"-"`
	Role           string    `gorm:"column:role;not null" json:"role"`
	TrackAllowance bool      `gorm:"column:track_allowance;not null;default:false" json:"track_allowance"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName pins the users table.
func (User) TableName() string { return "users" }

// Chore is an assignable task with an optional allowance reward in cents.
type Chore struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	Description string    `gorm:"column:description;not null" json:"description"`
	AssignedTo  string    `gorm:"column:assigned_to;index;not null" json:"assigned_to"`
	RewardCents int64     `gorm:"column:reward_cents;not null;default:0" json:"reward_cents"`
	Completed   bool      `gorm:"column:completed;not null;default:false" json:"completed"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName pins the chores table.
func (Chore) TableName() string { return "chores" }

// AllowanceEntry is one ledger line; Balance is the running balance after the
// entry, so the newest row per user is the current balance.
type AllowanceEntry struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	UserID       string    `gorm:"column:user_id;index;not null" json:"user_id"`
	AmountCents  int64     `gorm:"column:amount_cents;not null" json:"amount_cents"`
	BalanceCents int64     `gorm:"column:balance_cents;not null" json:"balance_cents"`
	Note         string    `gorm:"column:note" json:"note"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName pins the allowance ledger table.
func (AllowanceEntry) TableName() string { return "allowance_ledger" }

// Calendar is either URL-backed (ICS feed) or provider-backed (GoogleID set).
type Calendar struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	URL       string    `gorm:"column:url" json:"url,omitempty"`
	GoogleID  string    `gorm:"column:google_id" json:"google_id,omitempty"`
	Color     string    `gorm:"column:color;not null;default:primary" json:"color"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName pins the calendars table.
func (Calendar) TableName() string { return "calendars" }

// DisplayToken authenticates wall-mounted displays without a user session.
type DisplayToken struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Token     string    `gorm:"column:token;uniqueIndex;not null" json:"token"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName pins the display tokens table.
func (DisplayToken) TableName() string { return "display_tokens" }

// WeatherRow is the single durable weather snapshot.
type WeatherRow struct {
	ID        int       `gorm:"column:id;primaryKey" json:"id"`
	FetchedAt time.Time `gorm:"column:fetched_at;not null" json:"fetched_at"`
	Data      string    `gorm:"column:data;not null" json:"data"`
}

// TableName pins the weather cache table.
func (WeatherRow) TableName() string { return "weather_cache" }

// EventRow is the durable per-calendar Google events payload.
type EventRow struct {
	CalendarID string    `gorm:"column:calendar_id;primaryKey" json:"calendar_id"`
	FetchedAt  time.Time `gorm:"column:fetched_at;not null" json:"fetched_at"`
	Events     string    `gorm:"column:events;not null" json:"events"`
}

// TableName pins the Google events cache table.
func (EventRow) TableName() string { return "google_calendar_cache" }

// FeedRow is the durable per-calendar raw ICS feed body.
type FeedRow struct {
	CalendarID string    `gorm:"column:calendar_id;primaryKey" json:"calendar_id"`
	FetchedAt  time.Time `gorm:"column:fetched_at;not null" json:"fetched_at"`
	ICSData    string    `gorm:"column:ics_data;not null" json:"ics_data"`
}

// TableName pins the ICS feed cache table.
func (FeedRow) TableName() string { return "calendar_feed_cache" }
