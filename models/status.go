package models

import "gorm.io/gorm"

const (
	ContactPending    = "pending"
	ContactProcessing = "processing"
	ContactDone       = "done"

	RunPending    = "pending"
	RunProcessing = "processing"
	RunCompleted  = "completed"
	RunFailed     = "failed"
)

// ResetStaleContacts returns contacts left in processing by a previous
// process back to the pending queue.
func ResetStaleContacts(db *gorm.DB) (int64, error) {
	res := db.Model(&Contact{}).
		Where("status = ?", ContactProcessing).
		Update("status", ContactPending)
	return res.RowsAffected, res.Error
}
