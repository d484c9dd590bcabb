package models

import "time"

// ClickEvent is a recorded offer-link activation. Rows are written by the
// click-tracking service and are read-only here.
type ClickEvent struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID    string    `gorm:"column:event_id;not null;uniqueIndex:click_events_event_id_key"`
	TrackingID string    `gorm:"column:tracking_id;not null"`
	DealID     string    `gorm:"column:deal_id;not null"`
	DealName   string    `gorm:"column:deal_name;not null"`
	ClickedAt  time.Time `gorm:"column:clicked_at;not null;index:click_events_clicked_at_idx"`
}

func (ClickEvent) TableName() string { return "click_events" }
