package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/booking"
	"github.com/clinicore/appointment_service/internal/hash"
	"github.com/clinicore/appointment_service/internal/lookup"
	"github.com/clinicore/appointment_service/internal/models"
	"github.com/clinicore/appointment_service/internal/session"
	"github.com/clinicore/appointment_service/internal/util"
)

type AdminHandler struct {
	DB       *gorm.DB
	Sessions *session.Registry
	Engine   *booking.Engine
	Check    *lookup.Checker
}

func (h *AdminHandler) Register(c echo.Context) error {
	var req struct {
		AdminID  string `json:"aid"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.Administrator{}).
		Where("id = ?", req.AdminID).Count(&count).Error; err != nil {
		return fail(c, err)
	}
	if count > 0 {
		return fail(c, apperr.ErrDuplicate)
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return fail(c, err)
	}
	admin := models.Administrator{ID: req.AdminID, PasswordHash: pwHash}
	if err := h.DB.WithContext(ctx).Create(&admin).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *AdminHandler) Login(c echo.Context) error {
	var req struct {
		AdminID  string `json:"aid"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	var admin models.Administrator
	if err := h.DB.WithContext(ctx).Where("id = ?", req.AdminID).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, apperr.ErrWrongPassword)
		}
		return fail(c, err)
	}
	if !hash.CheckPassword(admin.PasswordHash, req.Password) {
		return fail(c, apperr.ErrWrongPassword)
	}

	token, err := h.Sessions.Issue(ctx, admin.ID, models.RoleAdmin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, loginResponse{Response: ok(), LoginToken: token})
}

func (h *AdminHandler) Logout(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	if err := h.Sessions.Revoke(c.Request().Context(), req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *AdminHandler) ModifyPassword(c echo.Context) error {
	var req struct {
		LoginToken  string `json:"login_token"`
		PasswordOld string `json:"password_old"`
		PasswordNew string `json:"password_new"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	aid, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin)
	if err != nil {
		return fail(c, err)
	}

	var admin models.Administrator
	if err := h.DB.WithContext(ctx).Where("id = ?", aid).First(&admin).Error; err != nil {
		return fail(c, err)
	}
	if !hash.CheckPassword(admin.PasswordHash, req.PasswordOld) {
		return fail(c, apperr.ErrWrongPassword)
	}

	pwHash, err := hash.HashPassword(req.PasswordNew)
	if err != nil {
		return fail(c, err)
	}
	if err := h.DB.WithContext(ctx).Model(&admin).Update("password_hash", pwHash).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *AdminHandler) AddDoctor(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		DoctorID   string `json:"did"`
		Name       string `json:"name"`
		Department string `json:"depart"`
		Rank       string `json:"rank"`
		Gender     string `json:"gender"`
		Birthday   string `json:"birthday"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Department(ctx, req.Department); err != nil {
		return fail(c, err)
	}

	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.Doctor{}).
		Where("id = ?", req.DoctorID).Count(&count).Error; err != nil {
		return fail(c, err)
	}
	if count > 0 {
		return fail(c, apperr.ErrDuplicate)
	}

	// New doctors start with their ID as the password, to be changed on
	// first login.
	pwHash, err := hash.HashPassword(req.DoctorID)
	if err != nil {
		return fail(c, err)
	}
	doctor := models.Doctor{
		ID:           req.DoctorID,
		Name:         req.Name,
		PasswordHash: pwHash,
		Gender:       req.Gender,
		Birthday:     parseBirthday(req.Birthday),
		Department:   req.Department,
		Rank:         req.Rank,
	}
	if err := h.DB.WithContext(ctx).Create(&doctor).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

// ModifyDoctor updates an existing doctor's record. Nil fields stay
// unchanged; moving a doctor requires the target department to exist.
func (h *AdminHandler) ModifyDoctor(c echo.Context) error {
	var req struct {
		LoginToken  string  `json:"login_token"`
		DoctorID    string  `json:"did"`
		Name        *string `json:"name"`
		Department  *string `json:"depart"`
		Rank        *string `json:"rank"`
		Gender      *string `json:"gender"`
		Birthday    *string `json:"birthday"`
		Information *string `json:"information"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Doctor(ctx, req.DoctorID); err != nil {
		return fail(c, err)
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Department != nil {
		if err := h.Check.Department(ctx, *req.Department); err != nil {
			return fail(c, err)
		}
		updates["department"] = *req.Department
	}
	if req.Rank != nil {
		updates["rank"] = *req.Rank
	}
	if req.Gender != nil {
		updates["gender"] = *req.Gender
	}
	if req.Birthday != nil {
		updates["birthday"] = parseBirthday(*req.Birthday)
	}
	if req.Information != nil {
		updates["information"] = *req.Information
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusOK, ok())
	}

	err := h.DB.WithContext(ctx).Model(&models.Doctor{}).
		Where("id = ?", req.DoctorID).
		Updates(updates).Error
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *AdminHandler) AddDepartment(c echo.Context) error {
	var req struct {
		LoginToken  string `json:"login_token"`
		Name        string `json:"depart_name"`
		Information string `json:"information"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}

	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.Department{}).
		Where("name = ?", req.Name).Count(&count).Error; err != nil {
		return fail(c, err)
	}
	if count > 0 {
		return fail(c, apperr.ErrDuplicate)
	}

	depart := models.Department{Name: req.Name, Information: req.Information}
	if err := h.DB.WithContext(ctx).Create(&depart).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *AdminHandler) ModifyDepartment(c echo.Context) error {
	var req struct {
		LoginToken  string `json:"login_token"`
		Name        string `json:"depart_name"`
		Information string `json:"information"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Department(ctx, req.Name); err != nil {
		return fail(c, err)
	}

	err := h.DB.WithContext(ctx).Model(&models.Department{}).
		Where("name = ?", req.Name).
		Update("information", req.Information).Error
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *AdminHandler) setBanned(c echo.Context, banned bool) error {
	var req struct {
		LoginToken string `json:"login_token"`
		Username   string `json:"username"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Patient(ctx, req.Username); err != nil {
		return fail(c, err)
	}

	err := h.DB.WithContext(ctx).Model(&models.Patient{}).
		Where("username = ?", req.Username).
		Update("is_banned", banned).Error
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *AdminHandler) BanPatient(c echo.Context) error   { return h.setBanned(c, true) }
func (h *AdminHandler) UnbanPatient(c echo.Context) error { return h.setBanned(c, false) }

func (h *AdminHandler) ViewPatient(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		Username   string `json:"username"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}

	var patient models.Patient
	if err := h.DB.WithContext(ctx).Where("username = ?", req.Username).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, apperr.ErrNotFound)
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"err":     "",
		"user":    patient,
	})
}

// FinishAppointment lets an administrator close an appointment on a
// doctor's behalf; same transition as the doctor endpoint.
func (h *AdminHandler) FinishAppointment(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		Username   string `json:"username"`
		SlotID     uint64 `json:"tid"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}

	if err := h.Engine.Finish(ctx, req.Username, req.SlotID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

// ListComments searches comments across the whole system, optionally
// narrowed to one doctor or one patient.
func (h *AdminHandler) ListComments(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		DoctorID   string `json:"did"`
		Username   string `json:"username"`
		StartTime  string `json:"start_time"`
		EndTime    string `json:"end_time"`
		FirstIndex int    `json:"first_index"`
		Limit      int    `json:"limit"`
	}
	req.Limit = 30
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}

	from, to, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	offset, limit := util.Clamp(req.FirstIndex, req.Limit)

	q := h.DB.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", from, to)
	if req.DoctorID != "" {
		q = q.Where("doctor_id = ?", req.DoctorID)
	}
	if req.Username != "" {
		q = q.Where("patient_id = ?", req.Username)
	}

	var comments []models.Comment
	err = q.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"err":      "",
		"comments": comments,
	})
}

func (h *AdminHandler) DeleteComment(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		CommentID  uint64 `json:"cid"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleAdmin); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Comment(ctx, req.CommentID); err != nil {
		return fail(c, err)
	}

	if err := h.DB.WithContext(ctx).Where("id = ?", req.CommentID).Delete(&models.Comment{}).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}
