package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonauth "schoolboard/server/common/auth"
	"schoolboard/server/common/middleware"
	"schoolboard/server/common/transport/httpresp"
	"schoolboard/server/school/domain"
	"schoolboard/server/school/service"
)

// Services groups what the handler serves. Attachments may be nil when
// object storage is disabled.
type Services struct {
	Accounts      *service.AccountService
	Conversations *service.ConversationService
	Announcements *service.AnnouncementService
	Directory     *service.DirectoryService
	Rename        *service.RenameService
	Attachments   *service.AttachmentService
}

type Handler struct {
	svc      Services
	auth     *commonauth.Service
	upgrader websocket.Upgrader
}

// NewHandler builds the routes' handler. Streams accept any origin unless
// allowedOrigins is non-empty.
func NewHandler(svc Services, auth *commonauth.Service, allowedOrigins ...string) *Handler {
	h := &Handler{svc: svc, auth: auth}
	h.upgrader.CheckOrigin = originChecker(allowedOrigins)
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })

	public := r.Group("/api/v1")
	{
		public.POST("/auth/register", h.register)
		public.POST("/auth/login", h.login)
		public.GET("/attachments/*key", h.openAttachment)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/auth/logout", h.logout)

		api.GET("/users", h.searchUsers)
		api.GET("/users/exists", h.userExists)
		api.PUT("/users/me/display-name", h.changeDisplayName)

		api.GET("/conversations", h.listConversations)
		api.POST("/conversations", h.createConversation)
		api.GET("/conversations/exists", h.conversationExists)
		api.GET("/conversations/:id/messages", h.listMessages)
		api.POST("/conversations/:id/messages", h.appendMessage)
		api.POST("/conversations/:id/read", h.markRead)
		api.DELETE("/conversations/:id", h.deleteConversation)

		api.GET("/announcement-grades", h.listGrades)
		api.POST("/announcement-grades", h.createGrade)
		api.GET("/announcement-grades/:grade/announcements", h.listAnnouncements)
		api.POST("/announcements", h.publishAnnouncement)
		api.PUT("/announcements/:id/pinned", h.setPinned)

		api.POST("/attachments", h.uploadAttachment)
	}

	ws := r.Group("/ws")
	ws.Use(middleware.AuthRequired(h.auth))
	{
		ws.GET("/conversations", h.streamConversations)
		ws.GET("/conversations/:id/messages", h.streamMessages)
		ws.GET("/announcement-grades", h.streamGrades)
		ws.GET("/announcements/:grade", h.streamAnnouncements)
	}
}

// sessionFrom rebuilds the caller's session from the verified token. The
// session id is still checked against the store by every service call.
func sessionFrom(c *gin.Context) *domain.Session {
	return domain.RestoreSession(middleware.Email(c), middleware.SessionID(c))
}

func gradeParam(c *gin.Context) (int, bool) {
	grade, err := strconv.Atoi(c.Param("grade"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrGradeMustBeNumeric))
		return 0, false
	}
	return grade, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return false
	}
	return true
}

func (h *Handler) register(c *gin.Context) {
	var req domain.Registration
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Accounts.Register(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewIDResponse(domain.SafeEmail(req.Email)))
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewTokenResponse(res.AccessToken, res.Email, res.IsDean))
}

func (h *Handler) logout(c *gin.Context) {
	h.svc.Accounts.Logout(c.Request.Context(), sessionFrom(c))
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) searchUsers(c *gin.Context) {
	items, err := h.svc.Directory.SearchUsers(c.Request.Context(), sessionFrom(c), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ItemsResponse[domain.DirectoryEntry]{Items: items})
}

func (h *Handler) userExists(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("email required"))
		return
	}
	exists, err := h.svc.Accounts.UserExists(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExistsResponse{Exists: exists})
}

func (h *Handler) changeDisplayName(c *gin.Context) {
	var req struct {
		DisplayName *string `json:"display_name"`
	}
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.svc.Rename.ChangeDisplayName(c.Request.Context(), sessionFrom(c), req.DisplayName)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewReportResponse(report))
}

func (h *Handler) listConversations(c *gin.Context) {
	snap, err := h.svc.Conversations.ListConversations(c.Request.Context(), sessionFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(snap))
}

type messageRequest struct {
	OtherEmails []string            `json:"other_emails"`
	OtherNames  []string            `json:"other_names"`
	Message     domain.MessageInput `json:"message"`
}

func (h *Handler) createConversation(c *gin.Context) {
	var req messageRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Conversations.CreateConversation(c.Request.Context(), sessionFrom(c), req.OtherEmails, req.OtherNames, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateConversationResponse{ID: res.ID, OK: res.Report.OK(), Failures: res.Report.Failures()})
}

func (h *Handler) conversationExists(c *gin.Context) {
	emails := strings.Split(c.Query("emails"), ",")
	id, err := h.svc.Conversations.ConversationExists(c.Request.Context(), sessionFrom(c), emails)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewIDResponse(id))
}

func (h *Handler) listMessages(c *gin.Context) {
	snap, err := h.svc.Conversations.ListMessages(c.Request.Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(snap))
}

func (h *Handler) appendMessage(c *gin.Context) {
	var req messageRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.svc.Conversations.AppendMessage(c.Request.Context(), sessionFrom(c), c.Param("id"), req.OtherEmails, req.OtherNames, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewReportResponse(report))
}

func (h *Handler) markRead(c *gin.Context) {
	if err := h.svc.Conversations.MarkLatestRead(c.Request.Context(), sessionFrom(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func (h *Handler) deleteConversation(c *gin.Context) {
	report, err := h.svc.Conversations.DeleteConversation(c.Request.Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewReportResponse(report))
}

func (h *Handler) listGrades(c *gin.Context) {
	snap, err := h.svc.Announcements.ListGrades(c.Request.Context(), sessionFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(snap))
}

func (h *Handler) createGrade(c *gin.Context) {
	var req struct {
		Grade int `json:"grade"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Announcements.CreateGrade(c.Request.Context(), sessionFrom(c), req.Grade); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewOKResponse())
}

func (h *Handler) listAnnouncements(c *gin.Context) {
	grade, ok := gradeParam(c)
	if !ok {
		return
	}
	snap, err := h.svc.Announcements.ListAnnouncements(c.Request.Context(), sessionFrom(c), grade)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewItemsResponse(snap))
}

func (h *Handler) publishAnnouncement(c *gin.Context) {
	var req domain.AnnouncementDraft
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.svc.Announcements.PublishAnnouncement(c.Request.Context(), sessionFrom(c), req)
	if err != nil && len(created) == 0 {
		writeError(c, err)
		return
	}
	resp := ItemsResponse[domain.Announcement]{Items: created}
	if err != nil {
		resp.Failures = []domain.DecodeFailure{{Index: -1, Reason: err.Error()}}
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) setPinned(c *gin.Context) {
	var req struct {
		Grade  int  `json:"grade"`
		Pinned bool `json:"pinned"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Announcements.SetPinned(c.Request.Context(), sessionFrom(c), c.Param("id"), req.Grade, req.Pinned); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

// openAttachment resolves a stable attachment link. Object keys carry a
// random component, so the link itself is the capability.
func (h *Handler) openAttachment(c *gin.Context) {
	if h.svc.Attachments == nil {
		c.JSON(http.StatusNotImplemented, httpresp.NewErrorResponse(httpresp.ErrAttachmentsDisabled))
		return
	}
	link, err := h.svc.Attachments.Link(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, link)
}

func (h *Handler) uploadAttachment(c *gin.Context) {
	if h.svc.Attachments == nil {
		c.JSON(http.StatusNotImplemented, httpresp.NewErrorResponse(httpresp.ErrAttachmentsDisabled))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(err.Error()))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	att, err := h.svc.Attachments.Upload(c.Request.Context(), sessionFrom(c), header.Filename, contentType, header.Size, file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpresp.NewURLResponse(att.URL, att.ThumbnailURL))
}
