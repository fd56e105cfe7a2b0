package ports

import "time"

// Selection is the persisted choice of source image shared with the picker process.
// Either field may be empty; Base64Image wins when both are set.
type Selection struct {
	Base64Image string    `yaml:"selected_base64_image,omitempty"`
	ImagePath   string    `yaml:"selected_image_path,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty reports whether no image is selected.
func (s Selection) IsEmpty() bool {
	return s.Base64Image == "" && s.ImagePath == ""
}

// SelectionStore is the cross-process slot holding the current Selection.
type SelectionStore interface {
	// Load returns the stored selection. A missing store yields an empty Selection.
	Load() (Selection, error)

	// Save replaces the stored selection.
	Save(sel Selection) error
}
