package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/booking"
	"github.com/clinicore/appointment_service/internal/hash"
	"github.com/clinicore/appointment_service/internal/ledger"
	"github.com/clinicore/appointment_service/internal/lookup"
	"github.com/clinicore/appointment_service/internal/models"
	"github.com/clinicore/appointment_service/internal/session"
	"github.com/clinicore/appointment_service/internal/util"

	"github.com/clinicore/appointment_service/internal/apperr"
)

type PatientHandler struct {
	DB       *gorm.DB
	Sessions *session.Registry
	Engine   *booking.Engine
	Ledger   *ledger.Ledger
	Check    *lookup.Checker
}

type loginResponse struct {
	Response
	LoginToken string `json:"login_token"`
}

// parseBirthday mirrors the permissive date handling of registration forms:
// an unparsable birthday is stored as unknown, not rejected.
func parseBirthday(s string) *time.Time {
	if t, err := time.ParseInLocation("2006-01-02", s, time.UTC); err == nil {
		return &t
	}
	return nil
}

func (h *PatientHandler) Register(c echo.Context) error {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		Name      string `json:"name"`
		Gender    string `json:"gender"`
		Birthday  string `json:"birthday"`
		IDNumber  string `json:"id_number"`
		Telephone string `json:"telephone"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	var count int64
	if err := h.DB.WithContext(ctx).Model(&models.Patient{}).
		Where("username = ?", req.Username).Count(&count).Error; err != nil {
		return fail(c, err)
	}
	if count > 0 {
		return fail(c, apperr.ErrDuplicate)
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return fail(c, err)
	}
	patient := models.Patient{
		Username:     req.Username,
		PasswordHash: pwHash,
		Name:         req.Name,
		Gender:       req.Gender,
		Birthday:     parseBirthday(req.Birthday),
		IDNumber:     req.IDNumber,
		Telephone:    req.Telephone,
	}
	if err := h.DB.WithContext(ctx).Create(&patient).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *PatientHandler) Login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if err := h.Check.ActivePatient(ctx, req.Username); err != nil {
		return fail(c, err)
	}

	var patient models.Patient
	if err := h.DB.WithContext(ctx).Where("username = ?", req.Username).First(&patient).Error; err != nil {
		return fail(c, err)
	}
	if patient.IsBanned || !hash.CheckPassword(patient.PasswordHash, req.Password) {
		return fail(c, apperr.ErrWrongPassword)
	}

	token, err := h.Sessions.Issue(ctx, patient.Username, models.RolePatient)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, loginResponse{Response: ok(), LoginToken: token})
}

func (h *PatientHandler) Logout(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	if err := h.Sessions.Revoke(c.Request().Context(), req.LoginToken, models.RolePatient); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *PatientHandler) ModifyPassword(c echo.Context) error {
	var req struct {
		LoginToken  string `json:"login_token"`
		PasswordOld string `json:"password_old"`
		PasswordNew string `json:"password_new"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	username, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RolePatient)
	if err != nil {
		return fail(c, err)
	}

	var patient models.Patient
	if err := h.DB.WithContext(ctx).Where("username = ?", username).First(&patient).Error; err != nil {
		return fail(c, err)
	}
	if !hash.CheckPassword(patient.PasswordHash, req.PasswordOld) {
		return fail(c, apperr.ErrWrongPassword)
	}

	pwHash, err := hash.HashPassword(req.PasswordNew)
	if err != nil {
		return fail(c, err)
	}
	if err := h.DB.WithContext(ctx).Model(&patient).Update("password_hash", pwHash).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *PatientHandler) Book(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		SlotID     uint64 `json:"tid"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	username, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RolePatient)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Check.ActivePatient(ctx, username); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Slot(ctx, req.SlotID); err != nil {
		return fail(c, err)
	}

	if err := h.Engine.Book(ctx, username, req.SlotID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *PatientHandler) Cancel(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		SlotID     uint64 `json:"tid"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	username, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RolePatient)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Check.ActivePatient(ctx, username); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Slot(ctx, req.SlotID); err != nil {
		return fail(c, err)
	}

	if err := h.Engine.Cancel(ctx, username, req.SlotID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *PatientHandler) SearchAppointments(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		Status     string `json:"status"`
		StartTime  string `json:"start_time"`
		EndTime    string `json:"end_time"`
		FirstIndex int    `json:"first_index"`
		Limit      int    `json:"limit"`
	}
	req.Limit = 10
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	username, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RolePatient)
	if err != nil {
		return fail(c, err)
	}

	from, to, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	offset, limit := util.Clamp(req.FirstIndex, req.Limit)

	recs, err := h.Engine.SearchByPatient(ctx, username, req.Status, from, to, offset, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"err":          "",
		"appointments": recs,
	})
}

// ListSlots shows a doctor's bookable slots to the patient.
func (h *PatientHandler) ListSlots(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		DoctorID   string `json:"did"`
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
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RolePatient); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Doctor(ctx, req.DoctorID); err != nil {
		return fail(c, err)
	}

	from, to, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	offset, limit := util.Clamp(req.FirstIndex, req.Limit)

	slots, err := h.Ledger.ListSlots(ctx, req.DoctorID, from, to, offset, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"err":     "",
		"times":   slots,
	})
}

func (h *PatientHandler) Comment(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		DoctorID   string `json:"did"`
		Comment    string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	username, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RolePatient)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Check.ActivePatient(ctx, username); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Doctor(ctx, req.DoctorID); err != nil {
		return fail(c, err)
	}

	comment := models.Comment{
		PatientID: username,
		DoctorID:  req.DoctorID,
		Content:   req.Comment,
	}
	if err := h.DB.WithContext(ctx).Create(&comment).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *PatientHandler) DeleteComment(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		CommentID  uint64 `json:"cid"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	username, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RolePatient)
	if err != nil {
		return fail(c, err)
	}
	if err := h.Check.Comment(ctx, req.CommentID); err != nil {
		return fail(c, err)
	}

	// Row-level ownership: the delete only matches the caller's own comment.
	if err := h.DB.WithContext(ctx).
		Where("id = ? AND patient_id = ?", req.CommentID, username).
		Delete(&models.Comment{}).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}
