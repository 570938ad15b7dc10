package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okupriienko/dogschool/internal/domain"
	redisrepo "github.com/okupriienko/dogschool/internal/repository/redis"
	"github.com/okupriienko/dogschool/internal/service"
	"github.com/okupriienko/dogschool/internal/service/admin"
	"github.com/okupriienko/dogschool/internal/service/booking"
	"github.com/okupriienko/dogschool/internal/service/enrollment"
	"github.com/okupriienko/dogschool/internal/service/query"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/schedules/:id", handleGetSchedule(svcs))
	r.GET("/schedules/:id/availability", handleGetAvailability(svcs))
	r.GET("/classes/:id/schedules", handleListClassSchedules(svcs))
	r.GET("/students/:id/bookings", handleListStudentBookings(svcs))
	r.GET("/students/:id/classes/:class_id/enrollments", handleListEligibleEnrollments(svcs))

	r.POST("/bookings", handleCreateBooking(svcs, idem))
	r.DELETE("/bookings/:id", handleCancelBooking(svcs))

	// Admin-API
	// TODO: add admin middleware
	adm := r.Group("/admin")
	{
		adm.POST("/classes", handleCreateClass(svcs))
		adm.POST("/schedules", handleCreateSchedule(svcs))
		adm.DELETE("/schedules/:id", handleCancelSchedule(svcs))
		adm.POST("/enrollments", handleCreateEnrollment(svcs))
		adm.GET("/enrollments/:id", handleGetEnrollment(svcs))
		adm.POST("/enrollments/:id/assign", handleAssignEnrollment(svcs))
		adm.POST("/enrollments/:id/suspend", handleSuspendEnrollment(svcs))
		adm.DELETE("/enrollments/:id", handleDeleteEnrollment(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get schedule
// @Param    id  path  int  true  "Schedule ID"
// @Success  200  {object}  query.ScheduleView
// @Failure  404  {object}  ErrorResponse
// @Router   /schedules/{id} [get]
func handleGetSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheduleID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		s, err := svcs.Query.GetSchedule(c.Request.Context(), scheduleID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, s, "public, max-age=60", true)
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Schedule ID"
// @Success  200  {object}  domain.ScheduleAvailability
// @Router   /schedules/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheduleID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		av, err := svcs.Query.Availability(c.Request.Context(), scheduleID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, av, "public, max-age=15", true)
	}
}

// @Summary  List upcoming schedules of a class
// @Param    id     path   int  true  "Class ID"
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}   query.ScheduleView
// @Router   /classes/{id}/schedules [get]
func handleListClassSchedules(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		classID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		scheds, err := svcs.Query.ListClassSchedules(c.Request.Context(), classID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, scheds, "public, max-age=15", true)
	}
}

// @Summary  List a student's bookings
// @Param    id     path   int  true  "Student ID"
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}   query.BookingView
// @Router   /students/{id}/bookings [get]
func handleListStudentBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		views, err := svcs.Query.ListStudentBookings(c.Request.Context(), studentID, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, views)
	}
}

// @Summary  List a student's usable tickets for a class
// @Param    id        path  int  true  "Student ID"
// @Param    class_id  path  int  true  "Class ID"
// @Success  200  {array}  EnrollmentResponse
// @Router   /students/{id}/classes/{class_id}/enrollments [get]
func handleListEligibleEnrollments(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		classID, ok := parseInt64Param(c, "class_id")
		if !ok {
			return
		}
		enrollments, err := svcs.Booking.ListEligibleEnrollments(c.Request.Context(), studentID, classID)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]EnrollmentResponse, 0, len(enrollments))
		for _, e := range enrollments {
			out = append(out, enrollmentResponse(e))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Create booking (idempotent)
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} BookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "duplicate / session full / idem in progress"
// @Failure  422 {object} ErrorResponse "no valid ticket"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		enrollmentID := uuid.Nil
		if req.EnrollmentID != "" {
			id, err := uuid.Parse(req.EnrollmentID)
			if err != nil {
				badRequest(c, "invalid enrollment_id")
				return
			}
			enrollmentID = id
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(req.ScheduleID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "student:" + strconv.FormatInt(req.StudentID, 10)

		b, err := svcs.Booking.CreateBooking(
			c.Request.Context(),
			req.StudentID,
			req.ScheduleID,
			enrollmentID,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if isRateLimitedErr(err) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: err.Error()},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := BookingResponse{
			BookingID:    b.ID.String(),
			ScheduleID:   b.ScheduleID,
			StudentID:    b.StudentID,
			EnrollmentID: b.EnrollmentID.String(),
			BookedAt:     b.BookedAt.Format(time.RFC3339),
		}

		if idemStorageKey != "" && idem != nil {
			buf, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(buf))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Cancel booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} CancelBookingResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already cancelled / session completed"
// @Router   /bookings/{id} [delete]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookingID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid booking id")
			return
		}
		refunded, err := svcs.Booking.CancelBooking(c.Request.Context(), bookingID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CancelBookingResponse{Refunded: refunded})
	}
}

// @Summary  Create class
// @Param    req body  CreateClassRequest true "payload"
// @Success  201 {object} CreateClassResponse
// @Router   /admin/classes [post]
func handleCreateClass(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateClassRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		id, err := svcs.Admin.CreateClass(
			c.Request.Context(),
			req.Name,
			req.Description,
			req.CancelCutoffHours,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateClassResponse{ClassID: id})
	}
}

// @Summary  Create schedule
// @Param    req body  CreateScheduleRequest true "payload"
// @Success  201 {object} CreateScheduleResponse
// @Failure  400 {object} ErrorResponse
// @Router   /admin/schedules [post]
func handleCreateSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		ends, err := parseRFC3339(req.EndsAt)
		if err != nil {
			badRequest(c, "invalid ends_at (RFC3339)")
			return
		}
		id, err := svcs.Admin.CreateSchedule(
			c.Request.Context(),
			req.ClassID,
			starts,
			ends,
			domain.ScheduleType(req.Type),
			req.MaxStudents,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateScheduleResponse{ScheduleID: id})
	}
}

// @Summary  Cancel schedule and refund its bookings
// @Param    id  path  int  true  "Schedule ID"
// @Success  200 {object} CancelScheduleResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/schedules/{id} [delete]
func handleCancelSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheduleID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		refunded, err := svcs.Admin.CancelSchedule(c.Request.Context(), scheduleID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CancelScheduleResponse{RefundedBookings: refunded})
	}
}

// @Summary  Create enrollment (template when student_id is omitted)
// @Param    req body  CreateEnrollmentRequest true "payload"
// @Success  201 {object} CreateEnrollmentResponse
// @Router   /admin/enrollments [post]
func handleCreateEnrollment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEnrollmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		validFrom, err := parseRFC3339(req.ValidFrom)
		if err != nil {
			badRequest(c, "invalid valid_from (RFC3339)")
			return
		}
		validUntil, err := parseRFC3339(req.ValidUntil)
		if err != nil {
			badRequest(c, "invalid valid_until (RFC3339)")
			return
		}

		terms := enrollment.Terms{
			TotalCount:          req.TotalCount,
			ValidFrom:           validFrom,
			ValidUntil:          validUntil,
			PriceCents:          req.PriceCents,
			WeeklyLimit:         req.WeeklyLimit,
			MonthlyLimit:        req.MonthlyLimit,
			CancelCutoffHours:   req.CancelCutoffHours,
			MaxStudentsPerClass: req.MaxStudentsPerClass,
		}

		var id uuid.UUID
		if req.StudentID != nil {
			id, err = svcs.Enrollment.CreateAssigned(c.Request.Context(), *req.StudentID, req.ClassID, terms)
		} else {
			id, err = svcs.Enrollment.CreateTemplate(c.Request.Context(), req.ClassID, terms)
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEnrollmentResponse{EnrollmentID: id.String()})
	}
}

// @Summary  Get enrollment
// @Param    id  path  string  true  "Enrollment ID (uuid)"
// @Success  200 {object} EnrollmentResponse
// @Router   /admin/enrollments/{id} [get]
func handleGetEnrollment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid enrollment id")
			return
		}
		e, err := svcs.Enrollment.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, enrollmentResponse(*e))
	}
}

// @Summary  Assign a template enrollment to students
// @Param    id  path  string  true  "Template enrollment ID (uuid)"
// @Param    req body  AssignEnrollmentRequest true "payload"
// @Success  201 {object} AssignEnrollmentResponse
// @Failure  409 {object} ErrorResponse "not a template / not active"
// @Router   /admin/enrollments/{id}/assign [post]
func handleAssignEnrollment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		templateID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid enrollment id")
			return
		}
		var req AssignEnrollmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ids, err := svcs.Enrollment.AssignTemplate(c.Request.Context(), templateID, req.StudentIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, id.String())
		}
		c.JSON(http.StatusCreated, AssignEnrollmentResponse{EnrollmentIDs: out})
	}
}

// @Summary  Suspend enrollment
// @Param    id  path  string  true  "Enrollment ID (uuid)"
// @Success  204
// @Router   /admin/enrollments/{id}/suspend [post]
func handleSuspendEnrollment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid enrollment id")
			return
		}
		if err := svcs.Enrollment.Suspend(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Delete enrollment
// @Param    id     path   string  true  "Enrollment ID (uuid)"
// @Param    force  query  bool    false "override protection of used tickets"
// @Success  204
// @Failure  409 {object} ErrorResponse "enrollment has used sessions"
// @Router   /admin/enrollments/{id} [delete]
func handleDeleteEnrollment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid enrollment id")
			return
		}
		force := c.Query("force") == "true"
		if err := svcs.Enrollment.Delete(c.Request.Context(), id, force); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func enrollmentResponse(e domain.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		EnrollmentID:        e.ID.String(),
		StudentID:           e.StudentID,
		ClassID:             e.ClassID,
		TotalCount:          e.TotalCount,
		UsedCount:           e.UsedCount,
		RemainingCount:      e.RemainingCount(),
		ValidFrom:           e.ValidFrom.Format(time.RFC3339),
		ValidUntil:          e.ValidUntil.Format(time.RFC3339),
		Status:              string(e.Status),
		PriceCents:          e.PriceCents,
		CancelCutoffHours:   e.CancelCutoffHours,
		MaxStudentsPerClass: e.MaxStudentsPerClass,
	}
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func isRateLimitedErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "rate limited")
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "schedule not found"})
		return
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
		return
	case errors.Is(err, booking.ErrScheduleUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "schedule is not open for booking"})
		return
	case errors.Is(err, booking.ErrDuplicateBooking):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already booked"})
		return
	case errors.Is(err, booking.ErrSessionFull):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session full"})
		return
	case errors.Is(err, booking.ErrTicketExhausted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no sessions left on enrollment"})
		return
	case errors.Is(err, booking.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking already cancelled"})
		return
	case errors.Is(err, booking.ErrSessionCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session already completed"})
		return
	case errors.Is(err, booking.ErrNoValidTicket):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "no valid enrollment"})
		return
	// enrollment service
	case errors.Is(err, enrollment.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "enrollment not found"})
		return
	case errors.Is(err, enrollment.ErrClassNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "class not found"})
		return
	case errors.Is(err, enrollment.ErrNotTemplate):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "enrollment already assigned"})
		return
	case errors.Is(err, enrollment.ErrNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "enrollment not active"})
		return
	case errors.Is(err, enrollment.ErrInUse):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "enrollment has used sessions"})
		return
	case errors.Is(err, enrollment.ErrInvalidTerms):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid enrollment terms"})
		return
	// admin service
	case errors.Is(err, admin.ErrClassNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "class not found"})
		return
	case errors.Is(err, admin.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "schedule not found"})
		return
	case errors.Is(err, admin.ErrScheduleAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "schedule already cancelled"})
		return
	case errors.Is(err, admin.ErrScheduleAlreadyCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "schedule already completed"})
		return
	case errors.Is(err, admin.ErrGroupCapacityRequired),
		errors.Is(err, admin.ErrPrivateCapacityNotAllowed),
		errors.Is(err, admin.ErrInvalidTimeRange):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	// query service
	case errors.Is(err, query.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "schedule not found"})
		return
	case errors.Is(err, query.ErrClassNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "class not found"})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
