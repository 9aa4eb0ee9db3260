package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/middleware"
	"github.com/noah-isme/learnhub-api/internal/models"
)

// RouterDeps bundles the handlers and guards mounted under the API prefix.
type RouterDeps struct {
	Tokens         middleware.TokenValidator
	Admins         middleware.AdminAuthorizer
	LoginLimiter   middleware.Limiter
	ContactLimiter middleware.Limiter
	Logger         *zap.Logger

	StudentAuth *AuthHandler
	TeacherAuth *AuthHandler
	AdminAuth   *AuthHandler
	Students    *IdentityHandler
	Teachers    *IdentityHandler
	Approvals   *ApprovalHandler
	Courses     *CourseHandler
	Contact     *ContactHandler
}

// RegisterRoutes mounts the admin, student, teacher and course groups on api.
func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	auth := middleware.JWT(deps.Tokens)
	loginLimit := middleware.RateLimit(deps.LoginLimiter, deps.Logger)

	registerIdentityGroup(api.Group("/student"), models.RoleStudent, deps.StudentAuth, deps.Students, auth, loginLimit)
	registerIdentityGroup(api.Group("/teacher"), models.RoleTeacher, deps.TeacherAuth, deps.Teachers, auth, loginLimit)

	admin := api.Group("/admin")
	admin.POST("/signup", deps.AdminAuth.Signup)
	admin.POST("/login", loginLimit, deps.AdminAuth.Login)
	admin.POST("/logout", auth, middleware.RequireRoles(models.RoleAdmin), deps.AdminAuth.Logout)
	admin.POST("/contact-us", middleware.RateLimit(deps.ContactLimiter, deps.Logger), deps.Contact.Send)

	inbox := admin.Group("", auth, middleware.RequireAdmin(deps.Admins, ""))
	inbox.GET("/messages/all", deps.Contact.Unread)
	inbox.PATCH("/message/read", deps.Contact.MarkRead)

	review := admin.Group("/:adminId", auth, middleware.RequireAdmin(deps.Admins, "adminId"))
	review.GET("/approve", deps.Approvals.ListPending)
	review.POST("/approve", deps.Approvals.ListPending)
	review.GET("/approve/export", deps.Approvals.Export)
	review.GET("/approve/course", deps.Approvals.PendingCourses)
	review.POST("/approve/course/:courseId", deps.Approvals.DecideCourse)
	review.POST("/approve/:kind/:targetId", deps.Approvals.Transition)
	review.GET("/documents/:kind/:targetId", deps.Approvals.Documents)

	course := api.Group("/course")
	course.GET("/detail/:courseId", deps.Courses.Detail)
	course.GET("/catalog/:courseName", deps.Courses.Catalog)

	asTeacher := middleware.RequireSelf("teacherId", models.RoleTeacher)
	asStudent := middleware.RequireSelf("studentId", models.RoleStudent)
	course.POST("/:course/create/:teacherId", auth, asTeacher, deps.Courses.Create)
	course.POST("/:course/teacher/:teacherId/add-class", auth, asTeacher, deps.Courses.AddClass)
	course.POST("/:course/enroll/:studentId", auth, asStudent, deps.Courses.Enroll)
	course.GET("/teacher/:teacherId/enrolled", auth, asTeacher, deps.Courses.TeacherCourses)
	course.GET("/student/:studentId/enrolled", auth, asStudent, deps.Courses.StudentCourses)
	course.GET("/classes/teacher/:teacherId", auth, asTeacher, deps.Courses.TeacherClasses)
	course.GET("/classes/student/:studentId", auth, asStudent, deps.Courses.StudentClasses)
	course.PATCH("/classes/:classId/teacher/:teacherId/status", auth, asTeacher, deps.Courses.UpdateClassStatus)
}

func registerIdentityGroup(group *gin.RouterGroup, role models.Role, auth *AuthHandler, identities *IdentityHandler, jwt, loginLimit gin.HandlerFunc) {
	group.POST("/signup", auth.Signup)
	group.GET("/verify", auth.Verify)
	group.POST("/login", loginLimit, auth.Login)
	group.POST("/refresh", auth.Refresh)
	group.POST("/logout", jwt, middleware.RequireRoles(role), auth.Logout)
	group.POST("/forgetpassword", loginLimit, auth.ForgotPassword)
	group.POST("/forgetpassword/:token", auth.ResetPassword)

	self := middleware.RequireSelf("id", role)
	group.GET("/:id", jwt, self, identities.Profile)
	group.GET("/:id/documents", jwt, self, identities.Documents)
	group.POST("/verification/:id", jwt, self, identities.SubmitDocuments)
}
