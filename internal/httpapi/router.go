package httpapi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/asfrgrtgd/intcode-judge/internal/config"
	"github.com/asfrgrtgd/intcode-judge/internal/judge"
	"github.com/asfrgrtgd/intcode-judge/internal/queue"
	"github.com/asfrgrtgd/intcode-judge/internal/storage"
	"github.com/asfrgrtgd/intcode-judge/internal/store"
)

const maxProblemImportSize = 8 * 1024 * 1024 // 8MB

var supportedLanguages = []map[string]string{
	{"key": "cpp17", "label": "C++17 (G++)", "syntax": "cpp"},
	{"key": "python3", "label": "Python 3", "syntax": "python"},
}

func isSupportedLanguage(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, v := range supportedLanguages {
		if v["key"] == k {
			return true
		}
	}
	return false
}

func defaultSourceFor(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "python3":
		return "print(42)\n"
	default:
		return "#include <bits/stdc++.h>\nusing namespace std;\nint main(){cout<<42<<\"\\n\";return 0;}\n"
	}
}

// Deps bundles the repositories and services NewRouter wires into routes.
type Deps struct {
	Config         config.Config
	SessionStore   *sessions.CookieStore
	AuthService    AuthService
	RedisClient    *redis.Client
	Users          store.UserRepository
	Problems       store.ProblemRepository
	Submissions    store.SubmissionRepository
	Notices        store.NoticeRepository
	Queue          queue.Client
	Metrics        *queue.MetricsService
	Orchestrator   *judge.Orchestrator
	TestcaseStore  *storage.Store
}

// NewRouter constructs the Gin engine with every route wired.
func NewRouter(d Deps) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	r.Use(OriginRefererMiddleware(d.Config))
	r.Use(SessionMiddleware(d.Config, d.SessionStore))
	r.Use(CSRFMiddleware(d.Config, d.SessionStore))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) { handleLogin(c, d) })
		api.POST("/auth/logout", func(c *gin.Context) { handleLogout(c, d) })
		api.GET("/users/me", func(c *gin.Context) { handleUserMe(c, d) })
		api.GET("/users/:userid", func(c *gin.Context) { handleUserShow(c, d) })

		api.GET("/languages", func(c *gin.Context) {
			if _, ok := requireLogin(c); !ok {
				return
			}
			c.JSON(http.StatusOK, gin.H{"languages": supportedLanguages})
		})

		api.GET("/notices", func(c *gin.Context) { handleNoticeList(c, d) })
		api.GET("/notices/:id", func(c *gin.Context) { handleNoticeGet(c, d) })

		api.GET("/problems", func(c *gin.Context) { handlePublicProblemList(c, d) })
		api.GET("/problems/:id", func(c *gin.Context) { handlePublicProblemDetail(c, d) })
		api.GET("/problems/:id/submissions", func(c *gin.Context) { handleProblemSubmissions(c, d) })

		api.POST("/submissions", func(c *gin.Context) { handleCreateSubmission(c, d) })
		api.GET("/submissions", func(c *gin.Context) { handleListSubmissions(c, d) })
		api.GET("/submissions/:id", func(c *gin.Context) { handleSubmissionDetail(c, d) })

		api.GET("/queue", func(c *gin.Context) {
			if _, ok := requireLogin(c); !ok {
				return
			}
			ctx := c.Request.Context()
			n, err := d.RedisClient.LLen(ctx, queue.PendingQueueKey).Result()
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to get queue length")
				return
			}
			c.JSON(http.StatusOK, gin.H{"pending": n})
		})

		admin := api.Group("/admin")
		admin.Use(AdminOnly())
		registerAdminRoutes(admin, d, startedAt)
	}

	return r
}

func handleLogin(c *gin.Context, d Deps) {
	var req struct {
		UserID   string `json:"userid"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}

	user, err := d.AuthService.Authenticate(req.UserID, req.Password)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}

	session, err := d.SessionStore.Get(c.Request, sessionName)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
		return
	}
	session.Values = map[interface{}]interface{}{}
	session.Values["userid"] = user.Username
	session.Values["role"] = user.Role
	applySessionOptions(d.Config, session)
	if err := session.Save(c.Request, c.Writer); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": gin.H{"userid": user.Username, "role": user.Role}})
}

func handleLogout(c *gin.Context, d Deps) {
	sessionAny, _ := c.Get("session")
	sess, _ := sessionAny.(*sessions.Session)
	if sess == nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
		return
	}
	sess.Values = map[interface{}]interface{}{}
	applySessionOptions(d.Config, sess)
	sess.Options.MaxAge = -1
	if err := sess.Save(c.Request, c.Writer); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
		return
	}
	c.Status(http.StatusNoContent)
}

func handleUserMe(c *gin.Context, d Deps) {
	userid, ok := requireLogin(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := d.Users.FindByUsername(ctx, userid)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user does not exist")
		return
	}
	writeUserProfile(c, d, u)
}

func handleUserShow(c *gin.Context, d Deps) {
	if _, ok := requireLogin(c); !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := d.Users.FindByUsername(ctx, c.Param("userid"))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	writeUserProfile(c, d, u)
}

func writeUserProfile(c *gin.Context, d Deps, u *store.User) {
	ctx := c.Request.Context()
	subCount, err := d.Submissions.CountByUser(ctx, u.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to count submissions")
		return
	}
	solvedCount, err := d.Submissions.CountSolvedProblemsByUser(ctx, u.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to count solved problems")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userid":           u.Username,
		"role":             u.Role,
		"solved_count":     solvedCount,
		"submission_count": subCount,
		"created_at":       u.CreatedAt,
	})
}

func handleNoticeList(c *gin.Context, d Deps) {
	if _, ok := requireLogin(c); !ok {
		return
	}
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	items, total, err := d.Notices.List(c.Request.Context(), page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch notices")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

func handleNoticeGet(c *gin.Context, d Deps) {
	if _, ok := requireLogin(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	n, err := d.Notices.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "notice not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch notice")
		return
	}
	c.JSON(http.StatusOK, n)
}

func handlePublicProblemList(c *gin.Context, d Deps) {
	if _, ok := requireLogin(c); !ok {
		return
	}
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	items, total, err := d.Problems.ListPublic(c.Request.Context(), page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch problems")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

func handlePublicProblemDetail(c *gin.Context, d Deps) {
	if _, ok := requireLogin(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	ctx := c.Request.Context()
	isPublic, err := d.Problems.ExistsAndPublic(ctx, id)
	if err != nil || !isPublic {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}
	detail, err := d.Problems.FindDetail(ctx, id)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":              detail.ID,
		"slug":            detail.Slug,
		"title":           detail.Title,
		"statement":       detail.Statement,
		"time_limit_ms":   detail.TimeLimitMs,
		"memory_limit_mb": detail.MemoryLimitMB,
	})
}

func handleProblemSubmissions(c *gin.Context, d Deps) {
	if _, ok := requireLogin(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	ctx := c.Request.Context()
	isPublic, err := d.Problems.ExistsAndPublic(ctx, id)
	if err != nil || !isPublic {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}
	items, total, err := d.Submissions.ListByProblem(ctx, id, page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch submissions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

type submissionRequestBody struct {
	ProblemID   int64  `json:"problem_id"`
	Language    string `json:"language"`
	Code        string `json:"source_code"`
	Mode        string `json:"mode"`
	CustomInput string `json:"custom_input"`
}

func handleCreateSubmission(c *gin.Context, d Deps) {
	username, ok := requireLogin(c)
	if !ok {
		return
	}
	var req submissionRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	mode := judge.Mode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode == "" {
		mode = judge.ModeSubmit
	}
	if mode != judge.ModeSubmit && mode != judge.ModeRunSample && mode != judge.ModeCustom {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "mode must be submit, run_sample, or custom")
		return
	}
	if req.ProblemID <= 0 || strings.TrimSpace(req.Language) == "" || strings.TrimSpace(req.Code) == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "problem_id, language, and source_code are required")
		return
	}
	if !isSupportedLanguage(req.Language) {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unsupported language")
		return
	}

	ctx := c.Request.Context()
	user, err := d.Users.FindByUsername(ctx, username)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user does not exist")
		return
	}
	isPublic, err := d.Problems.ExistsAndPublic(ctx, req.ProblemID)
	if err != nil || !isPublic {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}

	if mode != judge.ModeSubmit {
		result, err := d.Orchestrator.Judge(ctx, judge.SubmissionRequest{
			ProblemID:   req.ProblemID,
			Language:    req.Language,
			Code:        req.Code,
			Mode:        mode,
			CustomInput: req.CustomInput,
			SubmitterID: user.ID,
		})
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "judge failed")
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	subID, err := d.Submissions.Enqueue(ctx, user.ID, req.ProblemID, req.Language, req.Code)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create submission")
		return
	}
	if err := d.Queue.Enqueue(ctx, queue.Job{
		SubmissionID: subID,
		ProblemID:    req.ProblemID,
		Language:     req.Language,
		RequestedAt:  time.Now(),
	}); err != nil {
		_ = d.Submissions.MarkFailed(ctx, subID, "failed to enqueue")
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to enqueue")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         subID,
		"problem_id": req.ProblemID,
		"language":   req.Language,
		"status":     "pending",
	})
}

func handleListSubmissions(c *gin.Context, d Deps) {
	username, ok := requireLogin(c)
	if !ok {
		return
	}
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	ctx := c.Request.Context()
	user, err := d.Users.FindByUsername(ctx, username)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user does not exist")
		return
	}
	items, total, err := d.Submissions.ListByUser(ctx, user.ID, page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch submissions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

func handleSubmissionDetail(c *gin.Context, d Deps) {
	if _, ok := requireLogin(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	detail, err := d.Submissions.FindDetail(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "submission not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            detail.ID,
		"userid":        detail.Username,
		"problem_id":    detail.ProblemID,
		"problem_title": detail.ProblemTitle,
		"language":      detail.Language,
		"status":        detail.Status,
		"verdict":       detail.Verdict,
		"runtime_ms":    detail.RuntimeMs,
		"error_message": detail.ErrorMessage,
		"source_code":   detail.Code,
		"judge_details": detail.CaseDetails,
		"created_at":    detail.CreatedAt,
	})
}

func registerAdminRoutes(admin *gin.RouterGroup, d Deps, startedAt time.Time) {
	admin.GET("/metrics/overview", func(c *gin.Context) {
		depth, workers, err := d.Metrics.Overview(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load metrics")
			return
		}
		c.JSON(http.StatusOK, gin.H{"queues": depth, "workers": workers})
	})
	admin.GET("/metrics/queues", func(c *gin.Context) {
		depth, err := d.Metrics.Queue(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load queue metrics")
			return
		}
		c.JSON(http.StatusOK, depth)
	})
	admin.GET("/metrics/workers", func(c *gin.Context) {
		workers, err := d.Metrics.Workers(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load workers")
			return
		}
		c.JSON(http.StatusOK, gin.H{"workers": workers})
	})
	admin.GET("/metrics/workers/:id", func(c *gin.Context) {
		hb, err := d.Metrics.WorkerByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, redis.Nil) {
				respondError(c, http.StatusNotFound, "NOT_FOUND", "worker not found")
				return
			}
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load worker")
			return
		}
		c.JSON(http.StatusOK, hb)
	})
	admin.GET("/system/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, queue.CollectSystemStatus(c.Request.Context(), d.Metrics, startedAt))
	})

	admin.POST("/submissions/bulk_test", func(c *gin.Context) { handleBulkTest(c, d) })
	admin.POST("/submissions/test", func(c *gin.Context) { handleBulkTest(c, d) })

	admin.GET("/notices", func(c *gin.Context) { handleNoticeList(c, d) })
	admin.POST("/notices", func(c *gin.Context) { handleNoticeCreate(c, d) })
	admin.PATCH("/notices/:id", func(c *gin.Context) { handleNoticeUpdate(c, d) })
	admin.DELETE("/notices/:id", func(c *gin.Context) { handleNoticeDelete(c, d) })

	admin.POST("/users", func(c *gin.Context) { handleCreateUser(c, d) })
	admin.GET("/users", func(c *gin.Context) { handleListUsers(c, d) })
	admin.POST("/users/bulk", func(c *gin.Context) { handleBulkUsers(c, d) })
	admin.GET("/users/:userid/submissions", func(c *gin.Context) { handleAdminUserSubmissions(c, d) })

	admin.GET("/problems/template", func(c *gin.Context) {
		data, err := buildProblemTemplateZip()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to build template")
			return
		}
		c.Header("Content-Disposition", "attachment; filename=two-sum.zip")
		c.Data(http.StatusOK, "application/zip", data)
	})
	admin.POST("/problems/import", func(c *gin.Context) { handleProblemImport(c, d) })
	admin.GET("/problems", func(c *gin.Context) { handleAdminProblemList(c, d) })
	admin.GET("/problems/:id/download", func(c *gin.Context) { handleProblemDownload(c, d) })
	admin.PATCH("/problems/:id", func(c *gin.Context) { handleProblemPatch(c, d) })
	admin.GET("/problems/:id/submissions", func(c *gin.Context) { handleAdminProblemSubmissions(c, d) })
	admin.PUT("/problems/:id/testcases/:case_no", func(c *gin.Context) { handleTestcaseReplace(c, d) })
	admin.DELETE("/problems/:id/testcases/:case_no", func(c *gin.Context) { handleTestcaseDelete(c, d) })
}

func handleTestcaseReplace(c *gin.Context, d Deps) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	caseNo, err := strconv.Atoi(c.Param("case_no"))
	if err != nil || caseNo <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid case_no")
		return
	}
	inFile, err := c.FormFile("in")
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "in field must contain the input file")
		return
	}
	outFile, err := c.FormFile("out")
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "out field must contain the expected output file")
		return
	}
	isSample := c.PostForm("is_sample") == "true"

	ctx := c.Request.Context()
	detail, err := d.Problems.FindDetail(ctx, problemID)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}

	inReader, err := inFile.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot open in file")
		return
	}
	defer inReader.Close()
	outReader, err := outFile.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot open out file")
		return
	}
	defer outReader.Close()

	meta, err := d.TestcaseStore.SaveSingle(detail.Slug, caseNo, inReader, outReader)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to save testcase files")
		return
	}

	if err := d.Problems.ReplaceTestcase(ctx, problemID, store.TestcaseInput{
		CaseNo:       caseNo,
		InPath:       meta.InPath,
		OutPath:      meta.OutPath,
		InSizeBytes:  meta.InSizeBytes,
		OutSizeBytes: meta.OutSizeBytes,
		InSHA256:     meta.InSHA256,
		OutSHA256:    meta.OutSHA256,
		IsSample:     isSample,
		ScoreWeight:  1,
	}); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to save testcase metadata")
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_no": caseNo, "in_sha256": meta.InSHA256, "out_sha256": meta.OutSHA256})
}

func handleTestcaseDelete(c *gin.Context, d Deps) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	caseNo, err := strconv.Atoi(c.Param("case_no"))
	if err != nil || caseNo <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid case_no")
		return
	}
	ctx := c.Request.Context()
	removed, err := d.Problems.DeleteTestcase(ctx, problemID, caseNo)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "testcase not found")
		return
	}
	d.TestcaseStore.Delete(removed.InPath, removed.OutPath)
	c.Status(http.StatusNoContent)
}

func handleBulkTest(c *gin.Context, d Deps) {
	var req struct {
		ProblemID  int64  `json:"problem_id"`
		Language   string `json:"language"`
		Count      int    `json:"count"`
		SourceCode string `json:"source_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	if req.Count <= 0 {
		req.Count = 10
	}
	if req.Count > 100 {
		req.Count = 100
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = "cpp17"
	}
	if !isSupportedLanguage(req.Language) {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unsupported language")
		return
	}
	if strings.TrimSpace(req.SourceCode) == "" {
		req.SourceCode = defaultSourceFor(req.Language)
	}

	ctx := c.Request.Context()
	sessionAny, _ := c.Get("session")
	sess, _ := sessionAny.(*sessions.Session)
	username, _ := sess.Values["userid"].(string)
	user, err := d.Users.FindByUsername(ctx, username)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "user does not exist")
		return
	}
	exists, err := d.Problems.Exists(ctx, req.ProblemID)
	if err != nil || !exists {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid problem_id")
		return
	}

	ids := make([]int64, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		subID, err := d.Submissions.Enqueue(ctx, user.ID, req.ProblemID, req.Language, req.SourceCode)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", fmt.Sprintf("failed at %d/%d: %v", i+1, req.Count, err))
			return
		}
		if err := d.Queue.Enqueue(ctx, queue.Job{SubmissionID: subID, ProblemID: req.ProblemID, Language: req.Language, RequestedAt: time.Now()}); err != nil {
			_ = d.Submissions.MarkFailed(ctx, subID, "failed to enqueue")
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", fmt.Sprintf("failed to enqueue %d/%d", i+1, req.Count))
			return
		}
		ids = append(ids, subID)
	}
	c.JSON(http.StatusCreated, gin.H{"created": ids, "count": len(ids), "problem": req.ProblemID, "language": req.Language})
}

func handleNoticeCreate(c *gin.Context, d Deps) {
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if req.Title == "" || req.Body == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and body are required")
		return
	}
	n, err := d.Notices.Create(c.Request.Context(), req.Title, req.Body)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create notice")
		return
	}
	c.JSON(http.StatusCreated, n)
}

func handleNoticeUpdate(c *gin.Context, d Deps) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	var req struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Body) == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "title or body must be set")
		return
	}
	ctx := c.Request.Context()
	current, err := d.Notices.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "notice not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch notice")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = current.Title
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		body = current.Body
	}
	n, err := d.Notices.Update(ctx, id, title, body)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update notice")
		return
	}
	c.JSON(http.StatusOK, n)
}

func handleNoticeDelete(c *gin.Context, d Deps) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	if err := d.Notices.Delete(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete notice")
		return
	}
	c.Status(http.StatusNoContent)
}

func handleCreateUser(c *gin.Context, d Deps) {
	var req struct {
		UserID   string `json:"userid"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Role = strings.TrimSpace(req.Role)
	if req.UserID == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "userid and password are required")
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	if req.Role != "user" && req.Role != "admin" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid role")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to hash password")
		return
	}
	ctx := c.Request.Context()
	if _, err := d.Users.Create(ctx, req.UserID, string(hash), req.Role); err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			respondError(c, http.StatusConflict, "CONFLICT", "userid already exists")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create user")
		return
	}
	record, err := d.Users.FindByUsername(ctx, req.UserID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load created user")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id": record.ID, "userid": record.Username, "role": record.Role, "created_at": record.CreatedAt,
	})
}

func handleListUsers(c *gin.Context, d Deps) {
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	items, total, err := d.Users.List(c.Request.Context(), page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch users")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

func handleBulkUsers(c *gin.Context, d Deps) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file field must contain a csv")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot open file")
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot read csv")
		return
	}
	header := records[0]
	if len(header) < 2 || strings.ToLower(strings.TrimSpace(header[0])) != "userid" || strings.ToLower(strings.TrimSpace(header[1])) != "password" {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "header must be userid,password")
		return
	}

	type failedRow struct {
		RowNumber int    `json:"row_number"`
		UserID    string `json:"userid"`
		Reason    string `json:"reason"`
	}
	var failed []failedRow
	created := 0
	ctx := c.Request.Context()
	for i, row := range records[1:] {
		rowNumber := i + 2
		if len(row) < 2 {
			failed = append(failed, failedRow{RowNumber: rowNumber, Reason: "INVALID_ROW"})
			continue
		}
		userid := strings.TrimSpace(row[0])
		password := row[1]
		if userid == "" || password == "" {
			failed = append(failed, failedRow{RowNumber: rowNumber, UserID: userid, Reason: "VALIDATION_ERROR"})
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			failed = append(failed, failedRow{RowNumber: rowNumber, UserID: userid, Reason: "INTERNAL_ERROR"})
			continue
		}
		if _, err := d.Users.Create(ctx, userid, string(hash), "user"); err != nil {
			reason := "UNKNOWN_ERROR"
			if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
				reason = "USERID_ALREADY_EXISTS"
			}
			failed = append(failed, failedRow{RowNumber: rowNumber, UserID: userid, Reason: reason})
			continue
		}
		created++
	}
	c.JSON(http.StatusOK, gin.H{"created_count": created, "failed_count": len(failed), "failed_rows": failed})
}

func handleAdminUserSubmissions(c *gin.Context, d Deps) {
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	ctx := c.Request.Context()
	user, err := d.Users.FindByUsername(ctx, c.Param("userid"))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	items, total, err := d.Submissions.ListByUser(ctx, user.ID, page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch submissions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

func handleAdminProblemSubmissions(c *gin.Context, d Deps) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	ctx := c.Request.Context()
	exists, err := d.Problems.Exists(ctx, id)
	if err != nil || !exists {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}
	items, total, err := d.Submissions.ListByProblem(ctx, id, page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch submissions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

func handleProblemImport(c *gin.Context, d Deps) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file field must contain a zip")
		return
	}
	if fileHeader.Size > maxProblemImportSize {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file too large (8MB max)")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PROBLEM_PACKAGE", "cannot open file")
		return
	}
	defer file.Close()
	limited := io.LimitReader(file, maxProblemImportSize+1024)
	data, err := io.ReadAll(limited)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to read upload")
		return
	}
	if int64(len(data)) > maxProblemImportSize {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file too large (8MB max)")
		return
	}

	input, err := ParseProblemArchive(d.TestcaseStore, data)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PROBLEM_PACKAGE", err.Error())
		return
	}

	problemID, err := d.Problems.CreateWithTestcases(c.Request.Context(), input)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			respondError(c, http.StatusConflict, "CONFLICT", "a problem with this slug already exists")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to save problem")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id": problemID, "title": input.Title, "slug": input.Slug,
		"time_limit_ms": input.TimeLimitMs, "memory_limit_mb": input.MemoryLimitMB,
	})
}

func handleAdminProblemList(c *gin.Context, d Deps) {
	page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	items, total, err := d.Problems.AdminList(c.Request.Context(), page, perPage)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch problems")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items, "page": page, "per_page": perPage,
		"total_items": total, "total_pages": calcTotalPages(total, perPage),
	})
}

func handleProblemDownload(c *gin.Context, d Deps) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	ctx := c.Request.Context()
	detail, err := d.Problems.FindDetail(ctx, id)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}
	cases, err := d.Problems.ListTestcases(ctx, id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load testcases")
		return
	}
	zipBytes, err := buildProblemZipFromDB(d.TestcaseStore, detail, cases)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to build archive")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", detail.Slug))
	c.Data(http.StatusOK, "application/zip", zipBytes)
}

func handleProblemPatch(c *gin.Context, d Deps) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return
	}
	var req struct {
		Title         *string  `json:"title"`
		Statement     *string  `json:"statement"`
		TimeLimitMs   *int     `json:"time_limit_ms"`
		MemoryLimitMB *int     `json:"memory_limit_mb"`
		IsPublic      *bool    `json:"is_public"`
		CheckerType   *string  `json:"checker_type"`
		CheckerEps    *float64 `json:"checker_eps"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	ctx := c.Request.Context()
	exists, err := d.Problems.Exists(ctx, id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch problem")
		return
	}
	if !exists {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "problem not found")
		return
	}
	if err := d.Problems.UpdateProblem(ctx, id, store.ProblemUpdateInput{
		Title:         req.Title,
		Statement:     req.Statement,
		TimeLimitMs:   req.TimeLimitMs,
		MemoryLimitMB: req.MemoryLimitMB,
		IsPublic:      req.IsPublic,
		CheckerType:   req.CheckerType,
		CheckerEps:    req.CheckerEps,
	}); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
