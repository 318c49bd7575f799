// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/okrun/caseflow/pkg/models"

// StartInstanceRequest represents the request body for starting an instance.
type StartInstanceRequest struct {
	Initiator string                  `json:"initiator" validate:"required"`
	Data      map[string]any          `json:"data,omitempty"`
	Metadata  models.InstanceMetadata `json:"metadata,omitempty"`
}

// CompleteStepRequest represents the request body for completing a step.
type CompleteStepRequest struct {
	UserID   string         `json:"user_id"  validate:"required"`
	Action   string         `json:"action"   validate:"required"`
	Data     map[string]any `json:"data,omitempty"`
	Comments string         `json:"comments,omitempty"`
}

// CancelInstanceRequest represents the request body for cancelling an instance.
type CancelInstanceRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
	Reason      string `json:"reason"`
}

// AddCommentRequest represents the request body for commenting on an instance.
type AddCommentRequest struct {
	AuthorID   string `json:"author_id"   validate:"required"`
	AuthorName string `json:"author_name"`
	AuthorRole string `json:"author_role"`
	Content    string `json:"content"     validate:"required"`
	Internal   bool   `json:"internal"`
}
