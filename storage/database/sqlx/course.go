package sqlxrepos

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

type courseRow struct {
	ID           string      `db:"id"`
	TeacherID    string      `db:"teacher_id"`
	Title        string      `db:"title"`
	Description  string      `db:"description"`
	Category     string      `db:"category"`
	ThumbnailURL null.String `db:"thumbnail_url"`
	Price        float64     `db:"price"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r courseRow) unmarshal() course.Course {
	return course.Course{
		ID:           r.ID,
		TeacherID:    r.TeacherID,
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		ThumbnailURL: r.ThumbnailURL.String,
		Price:        r.Price,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type lessonRow struct {
	ID          string      `db:"id"`
	CourseID    string      `db:"course_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	PlaybackID  null.String `db:"playback_id"`
	VideoPath   null.String `db:"video_path"`
	PDFPath     null.String `db:"pdf_path"`
	OrderIndex  int         `db:"order_index"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r lessonRow) unmarshal() course.Lesson {
	return course.Lesson{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Title:       r.Title,
		Description: r.Description.String,
		PlaybackID:  r.PlaybackID.String,
		VideoPath:   r.VideoPath.String,
		PDFPath:     r.PDFPath.String,
		OrderIndex:  r.OrderIndex,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

const (
	courseColumns = `id, teacher_id, title, description, category, thumbnail_url, price, created_at, updated_at`
	lessonColumns = `id, course_id, title, description, playback_id, video_path, pdf_path, order_index, created_at`
)

func (repo *courseRepository) CreateCourse(c course.Course) (course.Course, error) {
	q := `
INSERT INTO courses (` + courseColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.Exec(q,
		c.ID, c.TeacherID, c.Title, c.Description, c.Category,
		null.NewString(c.ThumbnailURL, c.ThumbnailURL != ""),
		c.Price, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "creating course")
	}
	return c, nil
}

func (repo *courseRepository) GetCourseByID(id string) (course.Course, error) {
	var row courseRow
	if err := repo.db.Get(&row, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course by id")
	}
	return row.unmarshal(), nil
}

func (repo *courseRepository) QueryCoursesByTeacher(teacherID string) ([]course.Course, error) {
	var rows []courseRow
	q := `SELECT ` + courseColumns + ` FROM courses WHERE teacher_id = $1 ORDER BY created_at DESC`
	if err := repo.db.Select(&rows, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying teacher courses")
	}
	return unmarshalCourses(rows), nil
}

func (repo *courseRepository) FilterCourses(filter course.QueryFilter, orderings ...core.DBOrdering) ([]course.Course, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf(
			"(title ILIKE %[1]s OR description ILIKE %[1]s OR category ILIKE %[1]s)", p))
	}
	if filter.Category != "" {
		where = append(where, "category ILIKE "+arg(filter.Category))
	}
	if filter.TeacherID != "" {
		where = append(where, "teacher_id = "+arg(filter.TeacherID))
	}

	q := `SELECT ` + courseColumns + ` FROM courses`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(orderings, "created_at DESC")

	var rows []courseRow
	if err := repo.db.Select(&rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering courses")
	}
	return unmarshalCourses(rows), nil
}

func (repo *courseRepository) UpdateCourse(c course.Course) (course.Course, error) {
	q := `
UPDATE courses
SET title = $1, description = $2, category = $3, thumbnail_url = $4, price = $5, updated_at = $6
WHERE id = $7`
	res, err := repo.db.Exec(q,
		c.Title, c.Description, c.Category,
		null.NewString(c.ThumbnailURL, c.ThumbnailURL != ""),
		c.Price, c.UpdatedAt.UTC(), c.ID,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.GetCourseByID(c.ID)
}

func (repo *courseRepository) DeleteCoursesByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	// lessons cascade via FK
	q, args, err := sqlx.In(`DELETE FROM courses WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.Exec(repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting courses")
	}
	return nil
}

func (repo *courseRepository) CreateLesson(l course.Lesson) (course.Lesson, error) {
	q := `
INSERT INTO lessons (` + lessonColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.Exec(q,
		l.ID, l.CourseID, l.Title,
		null.NewString(l.Description, l.Description != ""),
		null.NewString(l.PlaybackID, l.PlaybackID != ""),
		null.NewString(l.VideoPath, l.VideoPath != ""),
		null.NewString(l.PDFPath, l.PDFPath != ""),
		l.OrderIndex, l.CreatedAt.UTC(),
	)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "creating lesson")
	}
	return l, nil
}

func (repo *courseRepository) GetLessonByID(id string) (course.Lesson, error) {
	var row lessonRow
	if err := repo.db.Get(&row, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "getting lesson by id")
	}
	return row.unmarshal(), nil
}

func (repo *courseRepository) UpdateLesson(l course.Lesson) (course.Lesson, error) {
	q := `
UPDATE lessons
SET title = $2, description = $3, playback_id = $4, video_path = $5, pdf_path = $6
WHERE id = $1`
	res, err := repo.db.Exec(q,
		l.ID, l.Title,
		null.NewString(l.Description, l.Description != ""),
		null.NewString(l.PlaybackID, l.PlaybackID != ""),
		null.NewString(l.VideoPath, l.VideoPath != ""),
		null.NewString(l.PDFPath, l.PDFPath != ""),
	)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return repo.GetLessonByID(l.ID)
}

func (repo *courseRepository) QueryLessonsByCourse(courseID string) ([]course.Lesson, error) {
	var rows []lessonRow
	q := `SELECT ` + lessonColumns + ` FROM lessons WHERE course_id = $1 ORDER BY order_index`
	if err := repo.db.Select(&rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.unmarshal())
	}
	return lessons, nil
}

func (repo *courseRepository) UpdateLessonOrder(courseID string, lessonIDs []string) error {
	tx, err := repo.db.Beginx()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	for idx, id := range lessonIDs {
		res, err := tx.Exec(`UPDATE lessons SET order_index = $1 WHERE id = $2 AND course_id = $3`, idx, id, courseID)
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "reordering lessons")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			_ = tx.Rollback()
			return course.ErrLessonNotFound
		}
	}
	return errors.Wrap(tx.Commit(), "committing lesson order")
}

func (repo *courseRepository) DeleteLessonsByID(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM lessons WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.Exec(repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting lessons")
	}
	return nil
}

func unmarshalCourses(rows []courseRow) []course.Course {
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.unmarshal())
	}
	return courses
}
