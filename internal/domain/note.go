package domain

import "time"

type NoteFormat string

const (
	FormatPlainText NoteFormat = "plain_text"
	FormatMarkdown  NoteFormat = "markdown"
	FormatRichText  NoteFormat = "rich_text"
)

// DefaultCategory is the category assigned to notes that have none; several
// merge rules treat it as "unset" and let the other side win.
const DefaultCategory = "General"

type Note struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Category        string     `json:"category"`
	Tags            []string   `json:"tags"`
	Format          NoteFormat `json:"format"`
	Color           int64      `json:"color"`
	WordCount       int        `json:"word_count"`
	ReadTimeMinutes int        `json:"read_time_minutes"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Version   int64      `json:"version"`
	Checksum  string     `json:"checksum"`
}

// Clone returns a deep copy so resolution code can build merged candidates
// without mutating the snapshot it was handed.
func (n *Note) Clone() *Note {
	c := *n
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     int64     `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}
