package schema

// BoardNone is the sentinel board ID for uncategorized images.
const BoardNone = "none"

// Board is a server-side image board.
type Board struct {
	BoardID     string `json:"board_id"`
	BoardName   string `json:"board_name"`
	ImageCount  int    `json:"image_count,omitempty"`
	CoverImage  string `json:"cover_image_name,omitempty"`
	Archived    bool   `json:"archived,omitempty"`
	IsPrivate   bool   `json:"is_private,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// NormalizeBoardID maps empty and auto board selectors to the uncategorized
// sentinel the server expects.
func NormalizeBoardID(id string) string {
	switch id {
	case "", "auto", BoardNone:
		return BoardNone
	}
	return id
}
