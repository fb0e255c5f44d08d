package inmemdb

import (
	"sync"

	"github.com/evodigital/academia/core/course"
	"github.com/evodigital/academia/core/user"
)

type (
	DB struct {
		user   *userTable
		course *courseTable
		lesson *lessonTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	courseTable struct {
		table map[string]*course.Course
		mutex sync.RWMutex
	}

	lessonTable struct {
		table map[string]*course.Lesson
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		course: &courseTable{table: make(map[string]*course.Course)},
		lesson: &lessonTable{table: make(map[string]*course.Lesson)},
	}
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.course.mutex.Lock()
	db.course.table = make(map[string]*course.Course)
	db.course.mutex.Unlock()

	db.lesson.mutex.Lock()
	db.lesson.table = make(map[string]*course.Lesson)
	db.lesson.mutex.Unlock()
}
