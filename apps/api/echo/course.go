package echoapi

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/access"
	"github.com/evodigital/academia/core/course"
	"github.com/evodigital/academia/core/user"
)

var errCourseNotFoundInCtx = errors.New("course object not found in echo.Context")

// column names the public catalog may order by
var courseOrderingFields = []string{"title", "category", "price", "created_at", "updated_at"}

type courseApi struct {
	svc    course.Service
	usrSvc user.Service
	srv    *server
}

func registerCourseAPI(g *echo.Group, srv *server, svc course.Service, usrSvc user.Service) {
	api := courseApi{svc: svc, usrSvc: usrSvc, srv: srv}

	// public catalog
	cg := g.Group("/courses")
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieveDetail)

	// enrollment is free-tier: any authenticated account may stream
	cg.GET("/:id/lessons/:lid/video-url", api.lessonVideoURL)
	cg.GET("/:id/lessons/:lid/material-url", api.lessonMaterialURL)

	// teacher dashboard; approved teachers and the owner only
	tg := g.Group("/teacher", srv.accessMiddleware(access.CategoryTeacher))
	tg.GET("/courses", api.queryOwn)
	tg.POST("/courses", api.create)

	mg := tg.Group("/courses/:id", api.courseOwnerMiddleware)
	mg.PUT("", api.update)
	mg.DELETE("", api.destroy)
	mg.POST("/thumbnail", api.uploadThumbnail)
	mg.POST("/lessons", api.addLesson)
	mg.PUT("/lessons/order", api.reorderLessons)
	mg.DELETE("/lessons/:lid", api.destroyLesson)
	mg.POST("/lessons/:lid/video", api.uploadLessonVideo)
	mg.POST("/lessons/:lid/material", api.uploadLessonMaterial)
}

// courseOwnerMiddleware loads the course and enforces the ownership rule:
// a teacher only manages their own courses; the owner manages any.
func (api *courseApi) courseOwnerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		c, err := api.svc.GetByID(ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == course.ErrNotFound {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding course by ID")
		}

		if !api.srv.policy.IsOwner(contextIdentity(ctx)) {
			usr, err := getContextUser(ctx, api.usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if c.TeacherID != usr.ID {
				return course.ErrNotCourseOwner
			}
		}

		ctx.Set("object", c)
		return next(ctx)
	}
}

func contextCourse(ctx echo.Context) (course.Course, error) {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errCourseNotFoundInCtx, "retrieving object from context")
	}
	return c, nil
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, courseOrderingFields...)

	courses, err := api.svc.Filter(filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieveDetail(ctx echo.Context) error {
	detail, err := api.svc.GetDetail(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting course detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *courseApi) queryOwn(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	courses, err := api.svc.QueryByTeacher(usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying own courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.srv.deps.Validate); err != nil {
		return err
	}

	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	c, err := api.svc.Create(usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(c, api.srv.deps.Validate); err != nil {
		return err
	}

	c, err = api.svc.Update(c, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(c.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.srv.deps.Validate); err != nil {
		return err
	}

	l, err := api.svc.AddLesson(c, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *courseApi) reorderLessons(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	var data ReorderRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderRequest")
	}

	lessons, err := api.svc.ReorderLessons(c, data.LessonIDs)
	if err != nil {
		return errors.Wrap(err, "reordering lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.DeleteLesson(c, ctx.Param("lid")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Uploads

func (api *courseApi) uploadThumbnail(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	path, err := api.saveUpload(ctx, core.BucketThumbnails)
	if err != nil {
		return err
	}

	price := c.Price
	c, err = api.svc.Update(c, course.UpdateCourse{
		Title:        c.Title,
		Description:  c.Description,
		Category:     c.Category,
		ThumbnailURL: api.srv.deps.Store.PublicURL(core.BucketThumbnails, path),
		Price:        &price,
	})
	if err != nil {
		return errors.Wrap(err, "updating course thumbnail")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) uploadLessonVideo(ctx echo.Context) error {
	return api.uploadLessonMediaFile(ctx, core.BucketVideos)
}

func (api *courseApi) uploadLessonMaterial(ctx echo.Context) error {
	return api.uploadLessonMediaFile(ctx, core.BucketMaterials)
}

func (api *courseApi) uploadLessonMediaFile(ctx echo.Context, bucket string) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}

	path, err := api.saveUpload(ctx, bucket)
	if err != nil {
		return err
	}

	var videoPath, pdfPath string
	if bucket == core.BucketVideos {
		videoPath = path
	} else {
		pdfPath = path
	}
	l, err := api.svc.AttachLessonMedia(c, ctx.Param("lid"), videoPath, pdfPath)
	if err != nil {
		return errors.Wrap(err, "attaching lesson media")
	}
	return ctx.JSON(http.StatusOK, l)
}

// saveUpload stores the request's multipart "file" part as an opaque blob,
// keeping only the original extension.
func (api *courseApi) saveUpload(ctx echo.Context, bucket string) (string, error) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return "", core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	hint := strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
	ext := strings.TrimPrefix(filepath.Ext(fh.Filename), ".")
	path, err := api.srv.deps.Store.Save(bucket, hint, ext, f)
	return path, errors.Wrap(err, "saving upload")
}

// Signed media URLs

func (api *courseApi) lessonVideoURL(ctx echo.Context) error {
	l, err := api.getLesson(ctx)
	if err != nil {
		return err
	}
	// hosted playback takes precedence over legacy self-hosted videos
	if l.PlaybackID != "" {
		return ctx.JSON(http.StatusOK, MediaURLResponse{PlaybackID: l.PlaybackID})
	}
	if l.VideoPath == "" {
		return errHttpNotFound
	}
	url, err := api.srv.deps.Store.SignedURL(core.BucketVideos, l.VideoPath, api.srv.deps.Conf.Media.SignedURLTTL, false)
	if err != nil {
		return errors.Wrap(err, "signing video URL")
	}
	return ctx.JSON(http.StatusOK, MediaURLResponse{URL: url})
}

func (api *courseApi) lessonMaterialURL(ctx echo.Context) error {
	l, err := api.getLesson(ctx)
	if err != nil {
		return err
	}
	if l.PDFPath == "" {
		return errHttpNotFound
	}
	url, err := api.srv.deps.Store.SignedURL(core.BucketMaterials, l.PDFPath, api.srv.deps.Conf.Media.SignedURLTTL, true /* download */)
	if err != nil {
		return errors.Wrap(err, "signing material URL")
	}
	return ctx.JSON(http.StatusOK, MediaURLResponse{URL: url})
}

func (api *courseApi) getLesson(ctx echo.Context) (course.Lesson, error) {
	if contextIdentity(ctx) == nil {
		return course.Lesson{}, errUnauthorized
	}
	c, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return course.Lesson{}, errHttpNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "finding course by ID")
	}
	l, err := api.svc.GetLesson(c, ctx.Param("lid"))
	if err != nil {
		if errors.Cause(err) == course.ErrLessonNotFound {
			return course.Lesson{}, errHttpNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "finding lesson by ID")
	}
	return l, nil
}

type (
	ReorderRequest struct {
		LessonIDs []string `json:"lesson_ids"`
	}

	MediaURLResponse struct {
		URL        string `json:"url,omitempty"`
		PlaybackID string `json:"playback_id,omitempty"`
	}
)
