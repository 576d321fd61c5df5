// Package gradebook posts evaluation grades to an LTI Advantage gradebook (AGS).
package gradebook

import (
	"context"
	"errors"
	"time"
)

// ErrNoLink is returned when an evaluation was never linked to a platform line item collection.
var ErrNoLink = errors.New("gradebook: evaluation not linked")

// Link ties an evaluation to the line items collection advertised at launch.
type Link struct {
	EvalID         string `json:"eval_id"`
	LineItemsURL   string `json:"lineitems_url" validate:"required,url"`
	ResourceLinkID string `json:"resource_link_id,omitempty"`
}

// LineItemRecord is the line item we created (or reused) for one evaluation.
type LineItemRecord struct {
	EvalID      string
	Label       string
	ScoreMax    float64
	LineItemURL string // absolute URL
}

type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncOK      SyncState = "ok"
	SyncFailed  SyncState = "failed"
)

// Status is the last passback outcome for one user of an evaluation.
type Status struct {
	EvalID    string    `json:"eval_id"`
	UserID    string    `json:"user_id"`
	State     SyncState `json:"status"`
	Retries   int       `json:"retries"`
	LastError string    `json:"last_error,omitempty"`
}

// Store: implement this in your app, or use sqlstore.Store
type Store interface {
	GetLink(ctx context.Context, evalID string) (Link, error)
	FindLineItem(ctx context.Context, evalID string) (LineItemRecord, error)
	UpsertLineItem(ctx context.Context, li LineItemRecord) (LineItemRecord, error)
	GetPlatformUserID(ctx context.Context, localUserID string) (string, error)

	MarkSyncPending(ctx context.Context, evalID, userID string) error
	MarkSyncOK(ctx context.Context, evalID, userID string) error
	MarkSyncFailed(ctx context.Context, evalID, userID, lastErr string) error
}

type LineItem struct {
	ID, Label, ResourceID, ResourceLinkID string
	ScoreMaximum                          float64
}

type CreateLineItemReq struct {
	Label          string
	ScoreMaximum   float64
	ResourceID     string
	ResourceLinkID string
}

type Score struct {
	UserID, ActivityProgress, GradingProgress string
	ScoreGiven, ScoreMaximum                  float64
	Timestamp                                 time.Time
}

type AGSClient interface {
	ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error)
	CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (LineItem, error)
	PostScore(ctx context.Context, lineItemURL string, s Score) error
}
