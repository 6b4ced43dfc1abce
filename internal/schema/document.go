package schema

import (
	"fmt"
	"time"
)

// Document is the metadata of a stored document. Its binary content
// lives in a separate collection and is only created when the user
// explicitly requests offline availability, so metadata may exist
// without content.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Filename  string    `json:"filename,omitempty"`
	PageCount int       `json:"page_count,omitempty"`
	Indexed   bool      `json:"indexed"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Creator   *Creator  `json:"creator,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	SavedAt   time.Time `json:"saved_at"`
}

// Validate checks required document fields.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// SetDefaults infers the owner id from the nested creator when unset.
func (d *Document) SetDefaults() {
	if d.OwnerID == "" && d.Creator != nil {
		d.OwnerID = d.Creator.ID
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
}
