package echoapi

import (
	"context"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/access"
	"github.com/evodigital/academia/core/course"
	"github.com/evodigital/academia/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    user.Service
		CourseSvc  course.Service
		Store      core.FileStore
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		policy   *access.Policy
		auth     *jwtAuth
		errChan  chan error
		shutChan chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		policy:   access.NewPolicy(deps.Conf.OwnerEmails),
		auth:     newJWTAuth(deps.Conf),
		errChan:  make(chan error, 1),
		shutChan: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutChan, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.app.GET("/media/:bucket/*", s.serveMedia)

	v1 := s.app.Group("/v1", s.auth.optionalMiddleware())
	v1.GET("/nav", s.nav)

	registerUserAPI(v1, s, s.deps.UserSvc)
	registerCourseAPI(v1, s, s.deps.CourseSvc, s.deps.UserSvc)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil {
		s.errChan <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errChan
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutChan
}

func (s *server) signalShutdown() {
	s.shutChan <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Academia API!")
}

// nav reports the navigation affordances and role badge the front-end should
// render for the current session.
func (s *server) nav(ctx echo.Context) error {
	identity := contextIdentity(ctx)

	profile := access.AbsentProfile()
	if identity != nil {
		if usr, err := getContextUser(ctx, s.deps.UserSvc); err == nil {
			profile = access.ResolvedProfile(usr)
		}
	}

	return ctx.JSON(http.StatusOK, NavResponse{
		Links:     s.policy.Links(identity, profile),
		RoleLabel: s.policy.RoleLabel(identity, profile),
	})
}

type NavResponse struct {
	Links     []access.NavEntry `json:"links"`
	RoleLabel string            `json:"role_label"`
}

// serveMedia delivers stored blobs. Thumbnails are public; any other bucket
// requires a valid signed URL.
func (s *server) serveMedia(ctx echo.Context) error {
	bucket := ctx.Param("bucket")
	path := ctx.Param("*")

	download := false
	if bucket != core.BucketThumbnails {
		vBucket, vPath, vDownload, err := s.deps.Store.VerifySignedURL(ctx.Request().URL.String())
		if err != nil {
			return err
		}
		bucket, path, download = vBucket, vPath, vDownload
	}

	f, err := s.deps.Store.Open(bucket, path)
	if err != nil {
		return err
	}
	defer f.Close()

	if download {
		ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+path+`"`)
	}
	ctype := mime.TypeByExtension(filepath.Ext(path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	return ctx.Stream(http.StatusOK, ctype, f)
}
