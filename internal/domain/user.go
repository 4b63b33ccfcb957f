// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxUserIDLen    = 64
	MaxPushTokenLen = 4096
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrPushTokenEmpty  = errors.New("push token empty")
	ErrUnknownPresence = errors.New("unknown presence status")
)

// UserID is the opaque identity resolved from a verified credential.
type UserID string

// ParseUserID trims and validates an identity coming from a credential claim.
func ParseUserID(raw string) (UserID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrUserIDEmpty
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(raw), nil
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

func ParsePresenceStatus(s string) (PresenceStatus, error) {
	switch PresenceStatus(s) {
	case StatusOnline, StatusOffline:
		return PresenceStatus(s), nil
	}
	return "", ErrUnknownPresence
}

// Presence is the durable presence record of a user.
type Presence struct {
	UserID   UserID         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}

// MemberPresence is one row of a group's "who is online" list.
type MemberPresence struct {
	UserID    UserID         `json:"id"`
	Username  string         `json:"username"`
	Status    PresenceStatus `json:"status"`
	LastSeen  *time.Time     `json:"last_seen"`
	Connected bool           `json:"connected"`
}
