package violation

import "time"

// Statuses a violation moves through. Open reports move to in_progress
// once the association acts on them, then to resolved or dismissed.
// Reopening returns a closed violation to open.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusDismissed  = "dismissed"
)

// Categories form a closed list matching what report forms offer.
var Categories = []string{
	"landscaping",
	"parking",
	"exterior",
	"noise",
	"pets",
	"trash",
	"other",
}

// Violation is one reported property violation, always owned by exactly
// one association.
type Violation struct {
	ID                string     `json:"id"`
	AssociationID     string     `json:"association_id"`
	ReporterProfileID string     `json:"reporter_profile_id"`
	Category          string     `json:"category"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Status            string     `json:"status"`
	ResolvedBy        string     `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Update carries optional field updates.
type Update struct {
	Category    *string
	Title       *string
	Description *string
}

// ListFilter narrows List results.
type ListFilter struct {
	Status   string
	Category string
	Limit    int
	Offset   int
}

// ValidCategory reports whether the category belongs to the closed list.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// validTransition encodes the status machine.
func validTransition(from, to string) bool {
	switch from {
	case StatusOpen:
		return to == StatusInProgress || to == StatusResolved || to == StatusDismissed
	case StatusInProgress:
		return to == StatusResolved || to == StatusDismissed
	case StatusResolved, StatusDismissed:
		return to == StatusOpen
	default:
		return false
	}
}
