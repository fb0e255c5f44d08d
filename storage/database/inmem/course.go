package inmemdb

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/course"
)

type courseRepository struct {
	courses *courseTable
	lessons *lessonTable
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{courses: db.course, lessons: db.lesson}
}

func (repo *courseRepository) query() []course.Course {
	courses := make([]course.Course, 0, len(repo.courses.table))
	for _, c := range repo.courses.table {
		courses = append(courses, *c)
	}
	// newest first
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses
}

func (repo *courseRepository) CreateCourse(c course.Course) (course.Course, error) {
	repo.courses.mutex.Lock()
	defer repo.courses.mutex.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	repo.courses.table[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) GetCourseByID(id string) (course.Course, error) {
	repo.courses.mutex.RLock()
	defer repo.courses.mutex.RUnlock()

	if c, ok := repo.courses.table[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCoursesByTeacher(teacherID string) ([]course.Course, error) {
	repo.courses.mutex.RLock()
	defer repo.courses.mutex.RUnlock()

	matches := make([]course.Course, 0)
	for _, c := range repo.query() {
		if c.TeacherID == teacherID {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

func (repo *courseRepository) FilterCourses(filter course.QueryFilter, orderings ...core.DBOrdering) ([]course.Course, error) {
	repo.courses.mutex.RLock()
	defer repo.courses.mutex.RUnlock()

	matches := make([]course.Course, 0)
	for _, c := range repo.query() {
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !(strings.Contains(strings.ToLower(c.Title), s) ||
				strings.Contains(strings.ToLower(c.Description), s) ||
				strings.Contains(strings.ToLower(c.Category), s)) {
				continue
			}
		}
		if filter.Category != "" && !strings.EqualFold(c.Category, filter.Category) {
			continue
		}
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		matches = append(matches, c)
	}
	return matches, nil
}

func (repo *courseRepository) UpdateCourse(c course.Course) (course.Course, error) {
	repo.courses.mutex.Lock()
	defer repo.courses.mutex.Unlock()

	orig, ok := repo.courses.table[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	c.TeacherID = orig.TeacherID
	c.CreatedAt = orig.CreatedAt
	repo.courses.table[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) DeleteCoursesByID(ids ...string) error {
	repo.courses.mutex.Lock()
	repo.lessons.mutex.Lock()
	defer repo.courses.mutex.Unlock()
	defer repo.lessons.mutex.Unlock()

	for _, id := range ids {
		delete(repo.courses.table, id)
		for lid, l := range repo.lessons.table {
			if l.CourseID == id {
				delete(repo.lessons.table, lid)
			}
		}
	}
	return nil
}

func (repo *courseRepository) CreateLesson(l course.Lesson) (course.Lesson, error) {
	repo.lessons.mutex.Lock()
	defer repo.lessons.mutex.Unlock()

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	repo.lessons.table[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) GetLessonByID(id string) (course.Lesson, error) {
	repo.lessons.mutex.RLock()
	defer repo.lessons.mutex.RUnlock()

	if l, ok := repo.lessons.table[id]; ok {
		return *l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) UpdateLesson(l course.Lesson) (course.Lesson, error) {
	repo.lessons.mutex.Lock()
	defer repo.lessons.mutex.Unlock()

	orig, ok := repo.lessons.table[l.ID]
	if !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	l.CourseID = orig.CourseID
	l.CreatedAt = orig.CreatedAt
	repo.lessons.table[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) QueryLessonsByCourse(courseID string) ([]course.Lesson, error) {
	repo.lessons.mutex.RLock()
	defer repo.lessons.mutex.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range repo.lessons.table {
		if l.CourseID == courseID {
			lessons = append(lessons, *l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].OrderIndex < lessons[j].OrderIndex })
	return lessons, nil
}

func (repo *courseRepository) UpdateLessonOrder(courseID string, lessonIDs []string) error {
	repo.lessons.mutex.Lock()
	defer repo.lessons.mutex.Unlock()

	for idx, id := range lessonIDs {
		l, ok := repo.lessons.table[id]
		if !ok || l.CourseID != courseID {
			return course.ErrLessonNotFound
		}
		l.OrderIndex = idx
	}
	return nil
}

func (repo *courseRepository) DeleteLessonsByID(ids ...string) error {
	repo.lessons.mutex.Lock()
	defer repo.lessons.mutex.Unlock()

	for _, id := range ids {
		delete(repo.lessons.table, id)
	}
	return nil
}
