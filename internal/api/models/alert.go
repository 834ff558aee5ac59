package models

import (
	"github.com/telecare/telecare/internal/alert"
)

// PagedAlerts is a page of alerts, newest first.
type PagedAlerts struct {
	Items []*alert.Alert    `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// UnreadCount is the unread badge value for one user.
type UnreadCount struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}
