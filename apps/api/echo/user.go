package echoapi

import (
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/evodigital/academia/core"
	"github.com/evodigital/academia/core/access"
	"github.com/evodigital/academia/core/user"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

// column names the admin listing may order by
var userOrderingFields = []string{"full_name", "email", "role", "is_approved", "created_at", "last_login"}

type userApi struct {
	svc user.Service
	srv *server
}

func registerUserAPI(g *echo.Group, srv *server, svc user.Service) {
	api := userApi{svc: svc, srv: srv}

	ug := g.Group("/users")

	// un-authed endpoints
	authLimiter := newIPRateLimiter(rate.Limit(1), 5)
	ug.POST("/register", api.register)
	ug.POST("/login", api.login, rateLimitMiddleware(authLimiter))
	ug.POST("/password-reset", api.resetPassword, rateLimitMiddleware(authLimiter))
	ug.POST("/password-reset-confirm", api.confirmPasswordReset, rateLimitMiddleware(authLimiter))

	// authed endpoints
	ug.POST("/token-refresh", api.refreshToken)
	ug.GET("/me", api.retrieveSelf)
	ug.PUT("/me", api.updateSelf)

	// admin endpoints; owner allow-list only
	ag := ug.Group("", srv.accessMiddleware(access.CategoryAdmin))
	ag.GET("", api.query)
	ag.GET("/roles", api.queryRoles)
	ag.DELETE("", api.destroyMultiple)
	ag.GET("/:id", api.retrieve)
	ag.PATCH("/:id/approval", api.setApproval)
	ag.DELETE("/:id", api.destroy)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.srv.deps.Validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.srv.deps.Validate); err != nil {
		return err
	}

	claims, err := authenticate(data.Email, data.Password, api.svc, api.srv.deps.Conf)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(claims, api.srv.deps.Conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.srv.deps.Validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.srv.deps.Validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc, api.srv.deps.Conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) retrieveSelf(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// updateSelf lets a profile edit its own settings. Approval and activation
// are administrative flags and cannot be self-served.
func (api *userApi) updateSelf(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if data.IsApproved != nil || data.IsActive != nil {
		return errHttpForbidden
	}
	if err := data.Validate(usr, api.srv.deps.Validate); err != nil {
		return err
	}

	usr, err = api.svc.Update(usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, userOrderingFields...)

	users, err := api.svc.Filter(filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// setApproval flips the teacher approval gate; the policy and every teacher
// route pick the new state up on their next profile fetch.
func (api *userApi) setApproval(ctx echo.Context) error {
	var data ApprovalRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ApprovalRequest")
	}
	if data.IsApproved == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "is_approved", Error: "this field is required"})
	}

	usr, err := api.svc.SetApproval(ctx.Param("id"), *data.IsApproved)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "setting approval")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding user by ID")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	if claims, err := getContextClaims(ctx); err == nil && claims.Subject == usr.ID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(query.IDs)
		if i := sort.SearchStrings(query.IDs, claims.Subject); i < len(query.IDs) && query.IDs[i] == claims.Subject {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	ApprovalRequest struct {
		IsApproved *bool `json:"is_approved"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
