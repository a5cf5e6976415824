package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/apperr"
	"github.com/clinicore/appointment_service/internal/booking"
	"github.com/clinicore/appointment_service/internal/hash"
	"github.com/clinicore/appointment_service/internal/ledger"
	"github.com/clinicore/appointment_service/internal/lookup"
	"github.com/clinicore/appointment_service/internal/models"
	"github.com/clinicore/appointment_service/internal/session"
	"github.com/clinicore/appointment_service/internal/util"
)

type DoctorHandler struct {
	DB       *gorm.DB
	Sessions *session.Registry
	Engine   *booking.Engine
	Ledger   *ledger.Ledger
	Check    *lookup.Checker
}

func (h *DoctorHandler) Login(c echo.Context) error {
	var req struct {
		DoctorID string `json:"did"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if err := h.Check.Doctor(ctx, req.DoctorID); err != nil {
		return fail(c, err)
	}

	var doctor models.Doctor
	if err := h.DB.WithContext(ctx).Where("id = ?", req.DoctorID).First(&doctor).Error; err != nil {
		return fail(c, err)
	}
	if !hash.CheckPassword(doctor.PasswordHash, req.Password) {
		return fail(c, apperr.ErrWrongPassword)
	}

	token, err := h.Sessions.Issue(ctx, doctor.ID, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, loginResponse{Response: ok(), LoginToken: token})
}

func (h *DoctorHandler) Logout(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	if err := h.Sessions.Revoke(c.Request().Context(), req.LoginToken, models.RoleDoctor); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *DoctorHandler) ModifyPassword(c echo.Context) error {
	var req struct {
		LoginToken  string `json:"login_token"`
		PasswordOld string `json:"password_old"`
		PasswordNew string `json:"password_new"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	did, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}

	var doctor models.Doctor
	if err := h.DB.WithContext(ctx).Where("id = ?", did).First(&doctor).Error; err != nil {
		return fail(c, err)
	}
	if !hash.CheckPassword(doctor.PasswordHash, req.PasswordOld) {
		return fail(c, apperr.ErrWrongPassword)
	}

	pwHash, err := hash.HashPassword(req.PasswordNew)
	if err != nil {
		return fail(c, err)
	}
	if err := h.DB.WithContext(ctx).Model(&doctor).Update("password_hash", pwHash).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *DoctorHandler) ViewInfo(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	did, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}

	var doctor models.Doctor
	if err := h.DB.WithContext(ctx).Where("id = ?", did).First(&doctor).Error; err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"err":     "",
		"doctor":  doctor,
	})
}

// ModifyInfo updates the doctor's own profile. Nil fields stay unchanged;
// department and rank are admin-controlled and not editable here.
func (h *DoctorHandler) ModifyInfo(c echo.Context) error {
	var req struct {
		LoginToken  string  `json:"login_token"`
		Name        *string `json:"name"`
		Gender      *string `json:"gender"`
		Birthday    *string `json:"birthday"`
		Information *string `json:"information"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	did, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
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

	err = h.DB.WithContext(ctx).Model(&models.Doctor{}).
		Where("id = ?", did).
		Updates(updates).Error
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *DoctorHandler) AddSlot(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		StartTime  string `json:"start_time"`
		EndTime    string `json:"end_time"`
		Capacity   int    `json:"capacity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	did, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}

	start, err := parseTime(req.StartTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	end, err := parseTime(req.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	slotID, err := h.Ledger.CreateSlot(ctx, did, start, end, req.Capacity)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"err":     "",
		"tid":     slotID,
	})
}

// ModifySlot updates capacity and/or interval. Nil fields stay unchanged.
func (h *DoctorHandler) ModifySlot(c echo.Context) error {
	var req struct {
		LoginToken string  `json:"login_token"`
		SlotID     uint64  `json:"tid"`
		StartTime  *string `json:"start_time"`
		EndTime    *string `json:"end_time"`
		Capacity   *int    `json:"capacity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Slot(ctx, req.SlotID); err != nil {
		return fail(c, err)
	}

	if req.Capacity != nil {
		if err := h.Ledger.UpdateCapacity(ctx, req.SlotID, *req.Capacity); err != nil {
			return fail(c, err)
		}
	}
	if req.StartTime != nil || req.EndTime != nil {
		var newStart, newEnd *time.Time
		if req.StartTime != nil {
			t, err := parseTime(*req.StartTime)
			if err != nil {
				return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
			}
			newStart = &t
		}
		if req.EndTime != nil {
			t, err := parseTime(*req.EndTime)
			if err != nil {
				return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
			}
			newEnd = &t
		}
		if err := h.Ledger.UpdateInterval(ctx, req.SlotID, newStart, newEnd); err != nil {
			return fail(c, err)
		}
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *DoctorHandler) DeleteSlot(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		SlotID     uint64 `json:"tid"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor); err != nil {
		return fail(c, err)
	}
	if err := h.Check.Slot(ctx, req.SlotID); err != nil {
		return fail(c, err)
	}

	if err := h.Ledger.DeleteSlot(ctx, req.SlotID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *DoctorHandler) ListSlots(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
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
	did, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}

	from, to, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	offset, limit := util.Clamp(req.FirstIndex, req.Limit)

	slots, err := h.Ledger.ListSlots(ctx, did, from, to, offset, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"err":     "",
		"times":   slots,
	})
}

func (h *DoctorHandler) SearchAppointments(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		Status     string `json:"status"`
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
	did, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}

	from, to, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	offset, limit := util.Clamp(req.FirstIndex, req.Limit)

	recs, err := h.Engine.SearchByDoctor(ctx, did, req.Status, from, to, offset, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"err":          "",
		"appointments": recs,
	})
}

func (h *DoctorHandler) FinishAppointment(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
		Username   string `json:"username"`
		SlotID     uint64 `json:"tid"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}

	ctx := c.Request().Context()
	if _, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor); err != nil {
		return fail(c, err)
	}

	if err := h.Engine.Finish(ctx, req.Username, req.SlotID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, ok())
}

func (h *DoctorHandler) ListComments(c echo.Context) error {
	var req struct {
		LoginToken string `json:"login_token"`
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
	did, err := h.Sessions.Resolve(ctx, req.LoginToken, models.RoleDoctor)
	if err != nil {
		return fail(c, err)
	}

	from, to, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, Response{Err: err.Error()})
	}
	offset, limit := util.Clamp(req.FirstIndex, req.Limit)

	var comments []models.Comment
	err = h.DB.WithContext(ctx).
		Where("doctor_id = ?", did).
		Where("created_at BETWEEN ? AND ?", from, to).
		Order("created_at DESC").
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
