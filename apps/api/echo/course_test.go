package echoapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/evodigital/academia/core/course"
	"github.com/evodigital/academia/core/user"
)

func createCourse(t *testing.T, deps *testDeps, teacher user.User, title string) course.Course {
	t.Helper()
	c, err := deps.courseSvc.Create(teacher, course.NewCourse{
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

func Test_courseApi_catalog(t *testing.T) {
	srv, deps := setup(t)
	teacher := createUser(t, deps.usrRepo, "Didier Kanku", "didier@test.cd", user.RoleTeacher, true)
	c := createCourse(t, deps, teacher, "Go for Beginners")
	createCourse(t, deps, teacher, "Advanced SQL")

	t.Run("list is public", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses")
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var courses []course.Course
		if err := json.Unmarshal(rec.Body.Bytes(), &courses); err != nil {
			t.Fatal(err)
		}
		if len(courses) != 2 {
			t.Errorf("len = %d; want 2", len(courses))
		}
	})

	t.Run("hostile ordering fields are ignored", func(t *testing.T) {
		q := url.QueryEscape("(SELECT password_hash FROM profiles LIMIT 1)")
		req, rec := newRequest(http.MethodGet, "/v1/courses?ordering="+q)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var courses []course.Course
		if err := json.Unmarshal(rec.Body.Bytes(), &courses); err != nil {
			t.Fatal(err)
		}
		if len(courses) != 2 {
			t.Errorf("len = %d; want 2", len(courses))
		}
	})

	t.Run("search filters the list", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses?search=sql")
		srv.ServeHTTP(rec, req)
		var courses []course.Course
		if err := json.Unmarshal(rec.Body.Bytes(), &courses); err != nil {
			t.Fatal(err)
		}
		if len(courses) != 1 || courses[0].Title != "Advanced SQL" {
			t.Errorf("got %v", courses)
		}
	})

	t.Run("detail includes teacher and lessons", func(t *testing.T) {
		if _, err := deps.courseSvc.AddLesson(c, course.NewLesson{Title: "Intro", PlaybackID: "pb-1"}); err != nil {
			t.Fatal(err)
		}

		req, rec := newRequest(http.MethodGet, "/v1/courses/"+c.ID)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var detail course.Detail
		if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
			t.Fatal(err)
		}
		if detail.Teacher.ID != teacher.ID {
			t.Errorf("teacher = %v; want %v", detail.Teacher.ID, teacher.ID)
		}
		if len(detail.Lessons) != 1 {
			t.Errorf("lessons = %v", detail.Lessons)
		}
	})

	t.Run("unknown course is 404", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses/nope")
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want 404", rec.Code)
		}
	})
}

func Test_courseApi_teacherCRUD(t *testing.T) {
	srv, deps := setup(t)

	teacher := createUser(t, deps.usrRepo, "Didier Kanku", "didier@test.cd", user.RoleTeacher, true)
	other := createUser(t, deps.usrRepo, "Eve Mallory", "eve@test.cd", user.RoleTeacher, true)
	student := createUser(t, deps.usrRepo, "Awa Ndiaye", "awa@test.cd", user.RoleStudent, false)
	owner := createUser(t, deps.usrRepo, "The Owner", ownerEmail, user.RoleStudent, false)

	teacherToken := getToken(t, teacher, deps.conf)
	otherToken := getToken(t, other, deps.conf)
	studentToken := getToken(t, student, deps.conf)
	ownerToken := getToken(t, owner, deps.conf)

	newCourseBody := []byte(`{
		"title": "Go for Beginners",
		"description": "Learn Go from scratch",
		"category": "Programming",
		"price": 25
	}`)

	t.Run("student cannot create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/teacher/courses", studentToken, newCourseBody)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want 403", rec.Code)
		}
	})

	var c course.Course
	t.Run("approved teacher creates", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/teacher/courses", teacherToken, newCourseBody)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
			t.Fatal(err)
		}
		if c.TeacherID != teacher.ID {
			t.Errorf("teacher_id = %v; want %v", c.TeacherID, teacher.ID)
		}
	})

	t.Run("another teacher cannot update it", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/teacher/courses/"+c.ID, otherToken,
			[]byte(`{"title": "Hijacked", "description": "x", "category": "x"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want 403; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("owner can update any course", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/teacher/courses/"+c.ID, ownerToken,
			[]byte(`{"title": "Go for Beginners 2e", "description": "Learn Go from scratch", "category": "Programming", "price": 30}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("own list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/teacher/courses", teacherToken)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var courses []course.Course
		if err := json.Unmarshal(rec.Body.Bytes(), &courses); err != nil {
			t.Fatal(err)
		}
		if len(courses) != 1 {
			t.Errorf("len = %d; want 1", len(courses))
		}
	})

	t.Run("delete cascades lessons", func(t *testing.T) {
		l, err := deps.courseSvc.AddLesson(c, course.NewLesson{Title: "Intro", PlaybackID: "pb-1"})
		if err != nil {
			t.Fatal(err)
		}

		req, rec := newAuthRequest(http.MethodDelete, "/v1/teacher/courses/"+c.ID, teacherToken)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		if _, err := deps.courseSvc.GetByID(c.ID); err != course.ErrNotFound {
			t.Errorf("expected course gone; got %v", err)
		}
		if lessons, _ := deps.courseSvc.Lessons(c.ID); len(lessons) != 0 {
			t.Errorf("expected lesson %s gone; got %v", l.ID, lessons)
		}
	})
}

func Test_courseApi_lessons(t *testing.T) {
	srv, deps := setup(t)
	teacher := createUser(t, deps.usrRepo, "Didier Kanku", "didier@test.cd", user.RoleTeacher, true)
	token := getToken(t, teacher, deps.conf)
	c := createCourse(t, deps, teacher, "Go for Beginners")

	var first, second course.Lesson

	t.Run("lessons append in order", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/teacher/courses/"+c.ID+"/lessons", token,
			[]byte(`{"title": "Intro", "playback_id": "pb-1"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
			t.Fatal(err)
		}

		req, rec = newAuthRequest(http.MethodPost, "/v1/teacher/courses/"+c.ID+"/lessons", token,
			[]byte(`{"title": "Variables", "playback_id": "pb-2"}`))
		srv.ServeHTTP(rec, req)
		if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
			t.Fatal(err)
		}

		if first.OrderIndex != 0 || second.OrderIndex != 1 {
			t.Errorf("order = %d, %d; want 0, 1", first.OrderIndex, second.OrderIndex)
		}
	})

	t.Run("reorder", func(t *testing.T) {
		body := marchallObj(t, ReorderRequest{LessonIDs: []string{second.ID, first.ID}})
		req, rec := newAuthRequest(http.MethodPut, "/v1/teacher/courses/"+c.ID+"/lessons/order", token, body)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var lessons []course.Lesson
		if err := json.Unmarshal(rec.Body.Bytes(), &lessons); err != nil {
			t.Fatal(err)
		}
		if lessons[0].ID != second.ID || lessons[1].ID != first.ID {
			t.Errorf("got %v", lessons)
		}
	})

	t.Run("incomplete reorder is rejected", func(t *testing.T) {
		body := marchallObj(t, ReorderRequest{LessonIDs: []string{first.ID}})
		req, rec := newAuthRequest(http.MethodPut, "/v1/teacher/courses/"+c.ID+"/lessons/order", token, body)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want 400; body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("lesson without playback or video is rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/teacher/courses/"+c.ID+"/lessons", token,
			[]byte(`{"title": "Empty"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want 400", rec.Code)
		}
	})
}

func Test_courseApi_media(t *testing.T) {
	srv, deps := setup(t)
	teacher := createUser(t, deps.usrRepo, "Didier Kanku", "didier@test.cd", user.RoleTeacher, true)
	student := createUser(t, deps.usrRepo, "Awa Ndiaye", "awa@test.cd", user.RoleStudent, false)
	teacherToken := getToken(t, teacher, deps.conf)
	studentToken := getToken(t, student, deps.conf)

	c := createCourse(t, deps, teacher, "Go for Beginners")
	l, err := deps.courseSvc.AddLesson(c, course.NewLesson{Title: "Intro", PlaybackID: "pb-1"})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("upload material", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/teacher/courses/"+c.ID+"/lessons/"+l.ID+"/material",
			teacherToken, "notes.pdf", []byte("pdfbytes"))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &l); err != nil {
			t.Fatal(err)
		}
		if l.PDFPath == "" {
			t.Fatal("expected pdf_path to be set")
		}
	})

	t.Run("anonymous cannot get a signed URL", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses/"+c.ID+"/lessons/"+l.ID+"/material-url")
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("code = %v; want 401", rec.Code)
		}
	})

	t.Run("any authenticated account can stream", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/courses/"+c.ID+"/lessons/"+l.ID+"/material-url", studentToken)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var resp MediaURLResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.URL == "" {
			t.Fatal("expected a signed URL")
		}

		// the signed URL serves the blob
		req, rec = newRequest(http.MethodGet, resp.URL)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("media: code = %v; body = %s", rec.Code, rec.Body.String())
		}
		if rec.Body.String() != "pdfbytes" {
			t.Errorf("media body = %q", rec.Body.String())
		}
	})

	t.Run("tampered signed URL is rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/courses/"+c.ID+"/lessons/"+l.ID+"/material-url", studentToken)
		srv.ServeHTTP(rec, req)
		var resp MediaURLResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		tampered := strings.Replace(resp.URL, l.PDFPath, "other.pdf", 1)
		req, rec = newRequest(http.MethodGet, tampered)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want 403", rec.Code)
		}
	})

	t.Run("hosted playback wins over signed URL", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/courses/"+c.ID+"/lessons/"+l.ID+"/video-url", studentToken)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var resp MediaURLResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.PlaybackID != "pb-1" || resp.URL != "" {
			t.Errorf("got %+v", resp)
		}
	})
}

func newUploadRequest(t *testing.T, path, token, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err = w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}
