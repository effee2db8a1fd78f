package app

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/model"
	"assessment_backend/internal/testutil"
	"assessment_backend/internal/util"
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const testSecret = "router-test-secret"

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

// newTestServer 使用真实的仓储、服务与路由，不配置模型与 Redis
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour},
		Storage: config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
		Upload:  config.UploadConfig{MaxSizeMB: 1, AllowedExtensions: []string{".pdf", ".txt"}},
		Generation: config.GenerationConfig{
			AIShare:         0.7,
			GenerateCount:   10,
			FallbackOnError: true,
		},
	}
	db := testutil.NewDB(t)

	a := &App{Config: cfg, DB: db}
	repos := a.initRepositories(db, nil, nil)
	a.services = a.initServices(repos, cfg)
	router := gin.New()
	a.registerRoutes(router, a.initControllers(a.services), cfg)

	return &testServer{t: t, db: db, router: router}
}

func (s *testServer) token(u *model.User) string {
	s.t.Helper()
	tok, err := util.GenerateJWT(u, testSecret, time.Hour)
	if err != nil {
		s.t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, util.Response) {
	s.t.Helper()
	var r *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(raw))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	return s.serve(r, token)
}

func (s *testServer) serve(r *http.Request, token string) (*httptest.ResponseRecorder, util.Response) {
	s.t.Helper()
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	var resp util.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func (s *testServer) upload(token, filename string, content []byte, fields map[string]string) (*httptest.ResponseRecorder, util.Response) {
	s.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		s.t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/assessments/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return s.serve(r, token)
}

// decode 将 Response.Data 重新解码为目标类型
func decode[T any](t *testing.T, resp util.Response) T {
	t.Helper()
	var out T
	raw, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

func quizText(n int) []byte {
	var b strings.Builder
	b.WriteString("Physics Quiz\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. Physics question %d?\nA. one\nB. two\nC. three\nD. four\n\n", i, i)
	}
	b.WriteString("Answers:\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d. B\n", i)
	}
	return []byte(b.String())
}

var uploadFields = map[string]string{
	"assessmentName": "Forces",
	"subject":        "Physics",
	"gradeLevel":     "9",
}

func TestHealthAndSwagger(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d %s", w.Code, w.Body)
	}
	data := decode[map[string]any](t, resp)
	components := data["components"].(map[string]any)
	if components["database"] != "up" || components["redis"] != "disabled" {
		t.Fatalf("components = %v", components)
	}

	w, _ = s.do(http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/assessments/upload") {
		t.Fatalf("swagger doc = %d", w.Code)
	}
}

func TestRegisterLoginProfile(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Ann", "email": "Ann@Example.com", "password": "secret1", "gradeLevel": "10",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", w.Code, w.Body)
	}

	w, _ = s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d", w.Code)
	}

	w, _ = s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Root", "email": "root@example.com", "password": "secret1", "role": "admin",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("admin self-registration = %d", w.Code)
	}

	w, _ = s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ann@example.com", "password": "wrong!"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad password = %d", w.Code)
	}

	w, resp := s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ann@example.com", "password": "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body)
	}
	login := decode[struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}](t, resp)
	if login.Token == "" || login.User.Role != model.Student {
		t.Fatalf("login = %+v", login)
	}

	w, resp = s.do(http.MethodGet, "/api/profile", login.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile = %d", w.Code)
	}
	if u := decode[model.User](t, resp); u.Email != "ann@example.com" || u.GradeLevel != "10" {
		t.Fatalf("profile = %+v", u)
	}

	if w, _ = s.do(http.MethodGet, "/api/profile", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous profile = %d", w.Code)
	}
}

func TestTeacherApprovalFlow(t *testing.T) {
	s := newTestServer(t)
	admin := testutil.CreateUser(t, s.db, "admin@example.com", model.Admin, model.StatusApproved)
	adminToken := s.token(admin)

	w, resp := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Tom", "email": "tom@example.com", "password": "secret1", "role": "teacher",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register teacher = %d", w.Code)
	}
	teacher := decode[model.User](t, resp)

	creds := map[string]string{"email": "tom@example.com", "password": "secret1"}
	if w, _ = s.do(http.MethodPost, "/api/login", "", creds); w.Code != http.StatusForbidden {
		t.Fatalf("pending login = %d", w.Code)
	}

	w, resp = s.do(http.MethodGet, "/api/admin/approvals/counts", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("counts = %d", w.Code)
	}
	if counts := decode[map[string]int](t, resp); counts["pending"] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	if w, _ = s.do(http.MethodGet, "/api/admin/approvals?status=bogus", adminToken, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d", w.Code)
	}

	path := fmt.Sprintf("/api/admin/approvals/%d", teacher.ID)
	if w, _ = s.do(http.MethodPatch, path+"/reject", adminToken, map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("reject without reason = %d", w.Code)
	}
	if w, _ = s.do(http.MethodPatch, path+"/approve", s.token(&teacher), nil); w.Code != http.StatusForbidden {
		t.Fatalf("teacher approving = %d", w.Code)
	}
	if w, _ = s.do(http.MethodPatch, path+"/approve", adminToken, nil); w.Code != http.StatusOK {
		t.Fatalf("approve = %d %s", w.Code, w.Body)
	}
	if w, _ = s.do(http.MethodPost, "/api/login", "", creds); w.Code != http.StatusOK {
		t.Fatalf("approved login = %d", w.Code)
	}

	if w, _ = s.do(http.MethodPatch, "/api/admin/approvals/abc/approve", adminToken, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id = %d", w.Code)
	}
}

func TestUploadAttemptSubmitFlow(t *testing.T) {
	s := newTestServer(t)
	teacher := testutil.CreateUser(t, s.db, "teacher@example.com", model.Teacher, model.StatusApproved)
	student := testutil.CreateUser(t, s.db, "student@example.com", model.Student, model.StatusApproved)
	teacherToken, studentToken := s.token(teacher), s.token(student)

	if w, _ := s.upload(studentToken, "forces.txt", quizText(6), uploadFields); w.Code != http.StatusForbidden {
		t.Fatalf("student upload = %d", w.Code)
	}
	if w, _ := s.upload(teacherToken, "forces.docx", quizText(6), uploadFields); w.Code != http.StatusBadRequest {
		t.Fatalf("docx upload = %d", w.Code)
	}
	if w, _ := s.upload(teacherToken, "forces.txt", quizText(6), map[string]string{"subject": "Physics"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields = %d", w.Code)
	}
	if w, _ := s.upload(teacherToken, "notes.txt", []byte("no numbered questions here\n"), uploadFields); w.Code != http.StatusBadRequest {
		t.Fatalf("document without questions = %d", w.Code)
	}

	// 未配置模型与备用题库：只保留原题
	w, resp := s.upload(teacherToken, "forces.txt", quizText(6), uploadFields)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d %s", w.Code, w.Body)
	}
	res := decode[struct {
		Assessment       model.Assessment `json:"assessment"`
		OriginalCount    int              `json:"originalCount"`
		GeneratedCount   int              `json:"generatedCount"`
		GenerationSource string           `json:"generationSource"`
		Warnings         []string         `json:"warnings"`
	}](t, resp)
	if res.OriginalCount != 3 || res.GeneratedCount != 0 || res.GenerationSource != "none" {
		t.Fatalf("upload result = %+v", res)
	}
	id := res.Assessment.ID
	base := fmt.Sprintf("/api/assessments/%d", id)

	w, resp = s.do(http.MethodGet, "/api/assessments/my", teacherToken, nil)
	if w.Code != http.StatusOK || len(decode[[]model.Assessment](t, resp)) != 1 {
		t.Fatalf("my assessments = %d %s", w.Code, w.Body)
	}

	w, resp = s.do(http.MethodGet, "/api/assessments/all", studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("all = %d", w.Code)
	}
	all := decode[[]map[string]any](t, resp)
	if len(all) != 1 || all[0]["submitted"] != false || all[0]["questionCount"] != float64(3) {
		t.Fatalf("all = %v", all)
	}

	w, resp = s.do(http.MethodGet, base+"/attempt", studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("attempt = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "correctAnswer") {
		t.Fatal("attempt view leaks correct answers")
	}
	view := decode[model.AttemptView](t, resp)

	answers := make([]map[string]int, 0, len(view.Questions))
	for _, q := range view.Questions {
		answers = append(answers, map[string]int{"questionId": int(q.ID), "selectedOption": 1})
	}
	submit := map[string]any{"answers": answers, "timeTaken": 120}

	if w, _ = s.do(http.MethodPost, base+"/submit", teacherToken, submit); w.Code != http.StatusForbidden {
		t.Fatalf("teacher submit = %d", w.Code)
	}

	w, resp = s.do(http.MethodPost, base+"/submit", studentToken, submit)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit = %d %s", w.Code, w.Body)
	}
	score := decode[model.SubmissionResult](t, resp)
	if score.Score != 3 || score.TotalMarks != 3 || score.Percentage != 100 || score.TimeTaken != 120 {
		t.Fatalf("score = %+v", score)
	}

	if w, _ = s.do(http.MethodPost, base+"/submit", studentToken, submit); w.Code != http.StatusBadRequest {
		t.Fatalf("second submit = %d", w.Code)
	}

	w, resp = s.do(http.MethodGet, base+"/submissions", teacherToken, nil)
	if w.Code != http.StatusOK || len(decode[[]model.Submission](t, resp)) != 1 {
		t.Fatalf("submissions = %d %s", w.Code, w.Body)
	}
	w, resp = s.do(http.MethodGet, "/api/submissions/my", studentToken, nil)
	if w.Code != http.StatusOK || len(decode[[]model.Submission](t, resp)) != 1 {
		t.Fatalf("my submissions = %d", w.Code)
	}

	w, resp = s.do(http.MethodGet, base+"/source", teacherToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("source = %d", w.Code)
	}
	if src := decode[map[string]any](t, resp); !strings.HasPrefix(src["url"].(string), "/uploads/assessments/") {
		t.Fatalf("source = %v", src)
	}

	// 未配置评语模型
	w, _ = s.do(http.MethodPost, "/api/feedback/send", studentToken, map[string]any{"submissionId": 1})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("feedback without model = %d", w.Code)
	}

	// 未配置 MongoDB 时为空列表
	w, resp = s.do(http.MethodGet, base+"/generation-logs", teacherToken, nil)
	if w.Code != http.StatusOK || len(decode[[]model.GenerationLog](t, resp)) != 0 {
		t.Fatalf("generation logs = %d %s", w.Code, w.Body)
	}

	other := testutil.CreateUser(t, s.db, "other@example.com", model.Teacher, model.StatusApproved)
	if w, _ = s.do(http.MethodGet, base+"/generation-logs", s.token(other), nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign generation logs = %d", w.Code)
	}
	if w, _ = s.do(http.MethodDelete, base, s.token(other), nil); w.Code != http.StatusForbidden {
		t.Fatalf("foreign delete = %d", w.Code)
	}
	if w, _ = s.do(http.MethodDelete, base, teacherToken, nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if w, _ = s.do(http.MethodGet, base+"/attempt", studentToken, nil); w.Code != http.StatusNotFound {
		t.Fatalf("attempt after delete = %d", w.Code)
	}
}
