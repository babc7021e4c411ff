package router

// Status is the outcome of routing one inbox item.
type Status string

const (
	StatusMoved                Status = "MOVED"
	StatusCollisionToReview    Status = "COLLISION_TO_REVIEW"
	StatusMetaMovedToReview    Status = "META_MOVED_TO_REVIEW"
	StatusPayloadMovedToReview Status = "PAYLOAD_MOVED_TO_REVIEW"
	StatusQuarantined          Status = "QUARANTINED"
	StatusDryRun               Status = "DRY_RUN"
	StatusError                Status = "ERROR"
)

// Terminal reports whether the item has left the inbox for good. ERROR
// items stay in place and are retried; DRY_RUN items were never touched.
func (s Status) Terminal() bool {
	switch s {
	case StatusMoved, StatusCollisionToReview, StatusMetaMovedToReview,
		StatusPayloadMovedToReview, StatusQuarantined:
		return true
	}
	return false
}

// ToReview reports whether the item ended up in the review area.
func (s Status) ToReview() bool {
	switch s {
	case StatusCollisionToReview, StatusMetaMovedToReview, StatusPayloadMovedToReview:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }
