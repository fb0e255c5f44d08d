package course_test

import (
	"testing"
	"time"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/course"
	"github.com/evodigital/academia/core/user"
	inmemdb "github.com/evodigital/academia/storage/database/inmem"
)

func setup(t *testing.T) (course.Service, user.Repository) {
	t.Helper()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	return course.NewService(inmemdb.NewCourseRepository(db), usrRepo), usrRepo
}

func createTeacher(t *testing.T, repo user.Repository, email string) user.User {
	t.Helper()
	usr, err := repo.CreateUser(user.User{
		FullName:   "Didier Kanku",
		Email:      email,
		Role:       user.RoleTeacher,
		IsApproved: true,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func createCourse(t *testing.T, svc course.Service, teacher user.User, title string) course.Course {
	t.Helper()
	c, err := svc.Create(teacher, course.NewCourse{
		Title:       title,
		Description: "Learn things",
		Category:    "Programming",
		Price:       25,
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return c
}

func Test_service_GetDetail(t *testing.T) {
	svc, usrRepo := setup(t)
	teacher := createTeacher(t, usrRepo, "didier@test.cd")
	c := createCourse(t, svc, teacher, "Go for Beginners")

	if _, err := svc.AddLesson(c, course.NewLesson{Title: "Intro", PlaybackID: "pb-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddLesson(c, course.NewLesson{Title: "Variables", PlaybackID: "pb-2"}); err != nil {
		t.Fatal(err)
	}

	detail, err := svc.GetDetail(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Teacher.ID != teacher.ID {
		t.Errorf("teacher = %v; want %v", detail.Teacher.ID, teacher.ID)
	}
	if len(detail.Lessons) != 2 {
		t.Fatalf("lessons = %v", detail.Lessons)
	}
	if detail.Lessons[0].Title != "Intro" || detail.Lessons[1].Title != "Variables" {
		t.Errorf("lesson order = %v", detail.Lessons)
	}

	if _, err = svc.GetDetail("nope"); err != course.ErrNotFound {
		t.Errorf("expected ErrNotFound; got %v", err)
	}
}

func Test_service_AddLesson_orderIndex(t *testing.T) {
	svc, usrRepo := setup(t)
	teacher := createTeacher(t, usrRepo, "didier@test.cd")
	c := createCourse(t, svc, teacher, "Go for Beginners")

	for i, title := range []string{"Intro", "Variables", "Functions"} {
		l, err := svc.AddLesson(c, course.NewLesson{Title: title, PlaybackID: "pb"})
		if err != nil {
			t.Fatal(err)
		}
		if l.OrderIndex != i {
			t.Errorf("OrderIndex = %d; want %d", l.OrderIndex, i)
		}
	}
}

func Test_service_ReorderLessons(t *testing.T) {
	svc, usrRepo := setup(t)
	teacher := createTeacher(t, usrRepo, "didier@test.cd")
	c := createCourse(t, svc, teacher, "Go for Beginners")

	var ids []string
	for _, title := range []string{"Intro", "Variables", "Functions"} {
		l, err := svc.AddLesson(c, course.NewLesson{Title: title, PlaybackID: "pb"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, l.ID)
	}

	t.Run("full permutation", func(t *testing.T) {
		lessons, err := svc.ReorderLessons(c, []string{ids[2], ids[0], ids[1]})
		if err != nil {
			t.Fatal(err)
		}
		got := []string{lessons[0].ID, lessons[1].ID, lessons[2].ID}
		want := []string{ids[2], ids[0], ids[1]}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order = %v; want %v", got, want)
			}
		}
	})

	t.Run("incomplete list is rejected", func(t *testing.T) {
		if _, err := svc.ReorderLessons(c, ids[:2]); err == nil {
			t.Error("expected an error")
		} else if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("expected ValidationError; got %T", err)
		}
	})

	t.Run("unknown lesson is rejected", func(t *testing.T) {
		if _, err := svc.ReorderLessons(c, []string{ids[0], ids[1], "nope"}); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("duplicate lesson is rejected", func(t *testing.T) {
		if _, err := svc.ReorderLessons(c, []string{ids[0], ids[1], ids[1]}); err == nil {
			t.Error("expected an error")
		}
	})
}

func Test_service_DeleteLesson(t *testing.T) {
	svc, usrRepo := setup(t)
	teacher := createTeacher(t, usrRepo, "didier@test.cd")
	c := createCourse(t, svc, teacher, "Go for Beginners")
	other := createCourse(t, svc, teacher, "Advanced SQL")

	l, err := svc.AddLesson(c, course.NewLesson{Title: "Intro", PlaybackID: "pb"})
	if err != nil {
		t.Fatal(err)
	}

	// a lesson cannot be deleted through another course
	if err := svc.DeleteLesson(other, l.ID); err != course.ErrLessonNotFound {
		t.Errorf("expected ErrLessonNotFound; got %v", err)
	}

	if err := svc.DeleteLesson(c, l.ID); err != nil {
		t.Fatal(err)
	}
	if lessons, _ := svc.Lessons(c.ID); len(lessons) != 0 {
		t.Errorf("expected no lessons; got %v", lessons)
	}
}

func Test_service_AttachLessonMedia(t *testing.T) {
	svc, usrRepo := setup(t)
	teacher := createTeacher(t, usrRepo, "didier@test.cd")
	c := createCourse(t, svc, teacher, "Go for Beginners")

	l, err := svc.AddLesson(c, course.NewLesson{Title: "Intro", PlaybackID: "pb"})
	if err != nil {
		t.Fatal(err)
	}

	l, err = svc.AttachLessonMedia(c, l.ID, "intro-abc.mp4", "")
	if err != nil {
		t.Fatal(err)
	}
	if l.VideoPath != "intro-abc.mp4" {
		t.Errorf("VideoPath = %q", l.VideoPath)
	}

	// empty arguments leave current values untouched
	l, err = svc.AttachLessonMedia(c, l.ID, "", "notes-def.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if l.VideoPath != "intro-abc.mp4" || l.PDFPath != "notes-def.pdf" {
		t.Errorf("got video=%q pdf=%q", l.VideoPath, l.PDFPath)
	}
}

func Test_service_Filter(t *testing.T) {
	svc, usrRepo := setup(t)
	teacher := createTeacher(t, usrRepo, "didier@test.cd")
	other := createTeacher(t, usrRepo, "eve@test.cd")
	createCourse(t, svc, teacher, "Go for Beginners")
	createCourse(t, svc, other, "Advanced SQL")

	courses, err := svc.Filter(&course.QueryFilter{Search: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 1 || courses[0].Title != "Go for Beginners" {
		t.Errorf("got %v", courses)
	}

	courses, err = svc.QueryByTeacher(other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 1 || courses[0].Title != "Advanced SQL" {
		t.Errorf("got %v", courses)
	}
}
