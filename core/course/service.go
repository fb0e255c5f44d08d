package course

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrNotCourseOwner is returned when a teacher manages a course taught
	// by somebody else. Owners bypass this check at the API layer by
	// acting on any teacher's behalf.
	ErrNotCourseOwner = errors.New("course belongs to another teacher")
)

type (
	Repository interface {
		CreateCourse(c Course) (Course, error)
		GetCourseByID(id string) (Course, error)
		QueryCoursesByTeacher(teacherID string) ([]Course, error)
		// FilterCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of
		// Course.Title, Course.Description or Course.Category.
		FilterCourses(filter QueryFilter, orderings ...core.DBOrdering) ([]Course, error)
		UpdateCourse(c Course) (Course, error)
		// DeleteCoursesByID cascades to the courses' lessons.
		DeleteCoursesByID(ids ...string) error

		CreateLesson(l Lesson) (Lesson, error)
		GetLessonByID(id string) (Lesson, error)
		UpdateLesson(l Lesson) (Lesson, error)
		// QueryLessonsByCourse returns lessons ordered by OrderIndex.
		QueryLessonsByCourse(courseID string) ([]Lesson, error)
		UpdateLessonOrder(courseID string, lessonIDs []string) error
		DeleteLessonsByID(ids ...string) error
	}

	Service interface {
		Create(teacher user.User, nc NewCourse) (Course, error)
		GetByID(id string) (Course, error)
		GetDetail(id string) (Detail, error)
		QueryByTeacher(teacherID string) ([]Course, error)
		Filter(filter *QueryFilter, orderings ...core.DBOrdering) ([]Course, error)
		Update(c Course, uc UpdateCourse) (Course, error)
		Delete(ids ...string) error

		AddLesson(c Course, nl NewLesson) (Lesson, error)
		GetLesson(c Course, lessonID string) (Lesson, error)
		// AttachLessonMedia sets the lesson's stored video and/or material
		// paths; empty arguments leave the current value untouched.
		AttachLessonMedia(c Course, lessonID, videoPath, pdfPath string) (Lesson, error)
		Lessons(courseID string) ([]Lesson, error)
		ReorderLessons(c Course, lessonIDs []string) ([]Lesson, error)
		DeleteLesson(c Course, lessonID string) error
	}

	service struct {
		repo    Repository
		usrRepo user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrRepo user.Repository) Service {
	return &service{repo: repo, usrRepo: usrRepo}
}

func (svc *service) Create(teacher user.User, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	c := Course{
		ID:           uuid.New().String(),
		TeacherID:    teacher.ID,
		Title:        nc.Title,
		Description:  nc.Description,
		Category:     nc.Category,
		ThumbnailURL: nc.ThumbnailURL,
		Price:        nc.Price,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateCourse(c)
}

func (svc *service) GetByID(id string) (Course, error) {
	return svc.repo.GetCourseByID(id)
}

// GetDetail assembles the public course page: course, teacher profile and
// ordered curriculum.
func (svc *service) GetDetail(id string) (Detail, error) {
	c, err := svc.repo.GetCourseByID(id)
	if err != nil {
		return Detail{}, err
	}
	teacher, err := svc.usrRepo.GetUserByID(c.TeacherID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return Detail{}, errors.Wrap(err, "finding course teacher")
	}
	lessons, err := svc.repo.QueryLessonsByCourse(c.ID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []Lesson{}
	}
	return Detail{Course: c, Teacher: teacher, Lessons: lessons}, nil
}

func (svc *service) QueryByTeacher(teacherID string) ([]Course, error) {
	return svc.repo.QueryCoursesByTeacher(teacherID)
}

func (svc *service) Filter(filter *QueryFilter, orderings ...core.DBOrdering) ([]Course, error) {
	return svc.repo.FilterCourses(*filter, orderings...)
}

func (svc *service) Update(c Course, uc UpdateCourse) (Course, error) {
	c.Title = uc.Title
	c.Description = uc.Description
	c.Category = uc.Category
	c.ThumbnailURL = uc.ThumbnailURL
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(c)
}

func (svc *service) Delete(ids ...string) error {
	return svc.repo.DeleteCoursesByID(ids...)
}

// AddLesson appends a lesson at the end of the course's curriculum.
func (svc *service) AddLesson(c Course, nl NewLesson) (Lesson, error) {
	existing, err := svc.repo.QueryLessonsByCourse(c.ID)
	if err != nil {
		return Lesson{}, errors.Wrap(err, "querying lessons")
	}
	l := Lesson{
		ID:          uuid.New().String(),
		CourseID:    c.ID,
		Title:       nl.Title,
		Description: nl.Description,
		PlaybackID:  nl.PlaybackID,
		VideoPath:   nl.VideoPath,
		PDFPath:     nl.PDFPath,
		OrderIndex:  len(existing),
		CreatedAt:   time.Now().UTC(),
	}
	return svc.repo.CreateLesson(l)
}

func (svc *service) GetLesson(c Course, lessonID string) (Lesson, error) {
	l, err := svc.repo.GetLessonByID(lessonID)
	if err != nil {
		return Lesson{}, err
	}
	if l.CourseID != c.ID {
		return Lesson{}, ErrLessonNotFound
	}
	return l, nil
}

func (svc *service) AttachLessonMedia(c Course, lessonID, videoPath, pdfPath string) (Lesson, error) {
	l, err := svc.GetLesson(c, lessonID)
	if err != nil {
		return Lesson{}, err
	}
	if videoPath != "" {
		l.VideoPath = videoPath
	}
	if pdfPath != "" {
		l.PDFPath = pdfPath
	}
	return svc.repo.UpdateLesson(l)
}

func (svc *service) Lessons(courseID string) ([]Lesson, error) {
	return svc.repo.QueryLessonsByCourse(courseID)
}

// ReorderLessons reindexes the course's curriculum to match lessonIDs.
// Every lesson of the course must appear exactly once.
func (svc *service) ReorderLessons(c Course, lessonIDs []string) ([]Lesson, error) {
	existing, err := svc.repo.QueryLessonsByCourse(c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	if len(lessonIDs) != len(existing) {
		return nil, core.NewValidationError(errors.New("lesson list is incomplete"))
	}
	byID := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		byID[l.ID] = struct{}{}
	}
	for _, id := range lessonIDs {
		if _, ok := byID[id]; !ok {
			return nil, core.NewValidationError(errors.Errorf("unknown lesson %q", id))
		}
		delete(byID, id)
	}

	if err := svc.repo.UpdateLessonOrder(c.ID, lessonIDs); err != nil {
		return nil, err
	}
	return svc.repo.QueryLessonsByCourse(c.ID)
}

func (svc *service) DeleteLesson(c Course, lessonID string) error {
	if _, err := svc.GetLesson(c, lessonID); err != nil {
		return err
	}
	return svc.repo.DeleteLessonsByID(lessonID)
}
