package models

import (
	"fmt"
	"strings"
	"time"
)

// PostStatus is the lifecycle status of a submission
type PostStatus string

const (
	StatusOpen    PostStatus = "OPEN"
	StatusPending PostStatus = "PENDING"
	StatusPaid    PostStatus = "PAID"
	StatusExpired PostStatus = "EXPIRED"
)

// rank orders statuses along the only allowed direction of travel.
func (s PostStatus) rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusPending, StatusExpired:
		return 1
	case StatusPaid:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next keeps the status monotonic
func (s PostStatus) CanAdvanceTo(next PostStatus) bool {
	return next.rank() > s.rank()
}

// Role is the authorization level of a user
type Role string

const (
	RoleUser      Role = "User"
	RoleAdmin     Role = "Admin"
	RoleModerator Role = "Moderator"
)

// ParseRole parses a role name, case-insensitively
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	case "moderator":
		return RoleModerator, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Coordinates is a WGS84 latitude/longitude pair in degrees
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherData is the observation payload attached to a submission
type WeatherData struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	Weather     string  `json:"weather"`
	PhotoURL    string  `json:"submission_photo_url"`
	// Timestamp is the creation time in nanoseconds since the epoch
	Timestamp int64 `json:"timestamp"`
}

// Submission represents one user-reported observation
type Submission struct {
	ID          int64       `json:"data_id"`
	UserID      string      `json:"user"`
	Data        WeatherData `json:"data"`
	ChallengeID *int64      `json:"challenge_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expiration_timestamp"`
	Rewarded    bool        `json:"rewarded"`
	Status      PostStatus  `json:"status"`
}

// Coordinates returns the location the submission was made at
func (s *Submission) Coordinates() Coordinates {
	return Coordinates{Latitude: s.Data.Latitude, Longitude: s.Data.Longitude}
}

// SubmissionSummary is the compact listing form of a submission
type SubmissionSummary struct {
	ID     int64      `json:"data_id"`
	City   string     `json:"city"`
	Status PostStatus `json:"status"`
}

// SubmissionLocation is a map pin for a submission
type SubmissionLocation struct {
	ID        int64      `json:"data_id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Status    PostStatus `json:"status"`
}

// ExpirationEntry pairs a submission id with its expiration time
type ExpirationEntry struct {
	ID        int64     `json:"data_id"`
	ExpiresAt time.Time `json:"expiration_timestamp"`
}

// Vote represents one user's validity judgment on a submission
type Vote struct {
	UserID       string `json:"user"`
	SubmissionID int64  `json:"submission_id"`
	Value        bool   `json:"vote_value"`
}

// VoteSummary counts votes for one submission
type VoteSummary struct {
	SubmissionID int64 `json:"data_id"`
	Upvotes      int   `json:"upvotes"`
	Downvotes    int   `json:"downvotes"`
}

// Total returns the number of votes cast
func (v VoteSummary) Total() int {
	return v.Upvotes + v.Downvotes
}

// Challenge represents a geofenced, time-bounded campaign
type Challenge struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RadiusM    float64   `json:"radius_m"`
	ExpiresAt  time.Time `json:"expiration"`
	PictureURL string    `json:"picture_url"`
}

// Center returns the geofence center
func (c *Challenge) Center() Coordinates {
	return Coordinates{Latitude: c.Latitude, Longitude: c.Longitude}
}

// User represents a participant
type User struct {
	ID                string  `json:"user_id"`
	FirstName         *string `json:"first_name,omitempty"`
	LastName          *string `json:"last_name,omitempty"`
	Username          *string `json:"username,omitempty"`
	LanguageCode      *string `json:"language_code,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
	IsBot             bool    `json:"is_bot"`
	WalletAddress     *string `json:"wallet_address,omitempty"`
	DeviceToken       *string `json:"device_token,omitempty"`
	Balance           uint64  `json:"balance"`
	Role              Role    `json:"role"`
}

// Profile holds the externally synced fields of a user
type Profile struct {
	ID                string  `json:"user_id"`
	FirstName         *string `json:"first_name,omitempty"`
	LastName          *string `json:"last_name,omitempty"`
	Username          *string `json:"username,omitempty"`
	LanguageCode      *string `json:"language_code,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
	IsBot             bool    `json:"is_bot"`
}
