package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/clinicore/appointment_service/internal/handlers"
)

type Deps struct {
	DB             *gorm.DB
	PatientHandler *handlers.PatientHandler
	DoctorHandler  *handlers.DoctorHandler
	AdminHandler   *handlers.AdminHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	patient := v1.Group("/patient")
	patient.POST("/register", d.PatientHandler.Register)
	patient.POST("/login", d.PatientHandler.Login)
	patient.POST("/logout", d.PatientHandler.Logout)
	patient.POST("/modify_password", d.PatientHandler.ModifyPassword)
	patient.POST("/appoint", d.PatientHandler.Book)
	patient.POST("/cancel_appoint", d.PatientHandler.Cancel)
	patient.POST("/search_appoint", d.PatientHandler.SearchAppointments)
	patient.POST("/search_time", d.PatientHandler.ListSlots)
	patient.POST("/comment", d.PatientHandler.Comment)
	patient.POST("/delete_comment", d.PatientHandler.DeleteComment)

	doctor := v1.Group("/doctor")
	doctor.POST("/login", d.DoctorHandler.Login)
	doctor.POST("/logout", d.DoctorHandler.Logout)
	doctor.POST("/modify_password", d.DoctorHandler.ModifyPassword)
	doctor.POST("/view_info", d.DoctorHandler.ViewInfo)
	doctor.POST("/modify_info", d.DoctorHandler.ModifyInfo)
	doctor.POST("/add_time", d.DoctorHandler.AddSlot)
	doctor.POST("/modify_time", d.DoctorHandler.ModifySlot)
	doctor.POST("/delete_time", d.DoctorHandler.DeleteSlot)
	doctor.POST("/search_time", d.DoctorHandler.ListSlots)
	doctor.POST("/search_appoint", d.DoctorHandler.SearchAppointments)
	doctor.POST("/finish_appoint", d.DoctorHandler.FinishAppointment)
	doctor.POST("/search_comment", d.DoctorHandler.ListComments)

	admin := v1.Group("/admin")
	admin.POST("/register", d.AdminHandler.Register)
	admin.POST("/login", d.AdminHandler.Login)
	admin.POST("/logout", d.AdminHandler.Logout)
	admin.POST("/modify_password", d.AdminHandler.ModifyPassword)
	admin.POST("/add_doctor", d.AdminHandler.AddDoctor)
	admin.POST("/modify_doctor", d.AdminHandler.ModifyDoctor)
	admin.POST("/add_depart", d.AdminHandler.AddDepartment)
	admin.POST("/modify_depart", d.AdminHandler.ModifyDepartment)
	admin.POST("/ban_user", d.AdminHandler.BanPatient)
	admin.POST("/unban_user", d.AdminHandler.UnbanPatient)
	admin.POST("/view_user", d.AdminHandler.ViewPatient)
	admin.POST("/finish_appoint", d.AdminHandler.FinishAppointment)
	admin.POST("/search_comment", d.AdminHandler.ListComments)
	admin.POST("/delete_comment", d.AdminHandler.DeleteComment)
}
