package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/user"
)

// Course is taught by exactly one teacher. ThumbnailURL is publicly
// addressable; lesson media is gated behind signed URLs.
type Course struct {
	ID           string    `json:"id"`
	TeacherID    string    `json:"teacher_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Price        float64   `json:"price"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// Lesson belongs to a Course and is ordered by OrderIndex within it.
// PlaybackID identifies the video at the delivery provider; PDFPath is a
// stored path in the materials bucket, exchanged for a signed URL on demand.
type Lesson struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PlaybackID  string    `json:"playback_id,omitempty"`
	VideoPath   string    `json:"video_path,omitempty"` // legacy self-hosted videos
	PDFPath     string    `json:"pdf_path,omitempty"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Detail is the public course page payload: the course, its teacher's
// profile and the ordered curriculum.
type Detail struct {
	Course  Course    `json:"course"`
	Teacher user.User `json:"teacher"`
	Lessons []Lesson  `json:"lessons"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title        string  `json:"title" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Category     string  `json:"category" validate:"required"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Price        float64 `json:"price" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Price        *float64 `json:"price" validate:"omitempty,gte=0"`
}

func (uc *UpdateCourse) Validate(orig Course, validate *validator.Validate) error {
	if title := core.CleanString(uc.Title); title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}
	if desc := core.CleanString(uc.Description); desc != "" {
		uc.Description = desc
	} else {
		uc.Description = orig.Description
	}
	if cat := core.CleanString(uc.Category); cat != "" {
		uc.Category = cat
	} else {
		uc.Category = orig.Category
	}
	if uc.ThumbnailURL == "" {
		uc.ThumbnailURL = orig.ThumbnailURL
	}
	return validate.Struct(uc)
}

// NewLesson contains information needed to append a Lesson to a Course.
// One of PlaybackID or VideoPath is required.
type NewLesson struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	PlaybackID  string `json:"playback_id" validate:"required_without=VideoPath"`
	VideoPath   string `json:"video_path" validate:"required_without=PlaybackID"`
	PDFPath     string `json:"pdf_path"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	nl.PlaybackID = core.CleanString(nl.PlaybackID)
	return validate.Struct(nl)
}

type QueryFilter struct {
	Search    string `query:"search"`
	Category  string `query:"category"`
	TeacherID string `query:"teacher_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Category == "" && qf.TeacherID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category)
}
