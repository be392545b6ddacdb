package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// BatchItem identifies one resource in a bulk mutation.
type BatchItem struct {
	ID   primitive.ObjectID `json:"id"`
	Type ResourceType       `json:"type"`
}

// FailureReason classifies a per-item logical failure inside a batch.
type FailureReason string

const (
	FailureNotFound         FailureReason = "not_found"
	FailureAlreadyInState   FailureReason = "already_in_state"
	FailureCyclicMove       FailureReason = "cyclic_move"
	FailurePermissionDenied FailureReason = "permission_denied"
)

type BatchItemResult struct {
	ID      primitive.ObjectID `json:"id"`
	Type    ResourceType       `json:"type"`
	Success bool               `json:"success"`
	Reason  FailureReason      `json:"reason,omitempty"`
	Error   string             `json:"error,omitempty"`
}

type BatchResult struct {
	Results      []BatchItemResult `json:"results"`
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
}

func (r *BatchResult) Add(item BatchItem, reason FailureReason, message string) {
	res := BatchItemResult{ID: item.ID, Type: item.Type}
	if reason == "" {
		res.Success = true
		r.SuccessCount++
	} else {
		res.Reason = reason
		res.Error = message
		r.FailureCount++
	}
	r.Results = append(r.Results, res)
}
