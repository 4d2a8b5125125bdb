package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examoffice/core/grading"
	"github.com/trezcool/examoffice/core/institution"
	"github.com/trezcool/examoffice/core/session"
	"github.com/trezcool/examoffice/core/standing"
	"github.com/trezcool/examoffice/core/user"
	testutil "github.com/trezcool/examoffice/tests"
)

const current = "2023/2024"

func setup(t *testing.T) (*testutil.Env, *server) {
	t.Helper()
	env := testutil.NewEnv()
	srv := NewServer(Deps{
		Conf:           env.Conf,
		Directory:      env.Directory,
		UserSvc:        env.UserSvc,
		StudentSvc:     env.StudentSvc,
		ResultSvc:      env.ResultSvc,
		StandingSvc:    env.StandingSvc,
		SessionSvc:     env.SessionSvc,
		Gatherer:       prometheus.NewRegistry(),
		DisableReqLogs: true,
	})
	return env, srv.(*server)
}

func tokenOf(t *testing.T, s *server, usr user.User) string {
	t.Helper()
	token, err := s.auth.GenerateToken(s.auth.claimsOf(usr))
	require.NoError(t, err)
	return token
}

func do(t *testing.T, s *server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestServer_home(t *testing.T) {
	_, s := setup(t)

	rec := do(t, s, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Exam Office API!", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserApi_login(t *testing.T) {
	env, s := setup(t)
	env.User(t, "officer", user.RoleOfficer, 0)

	tests := []struct {
		name     string
		body     user.LoginRequest
		wantCode int
	}{
		{"missing password", user.LoginRequest{Username: "officer"}, http.StatusBadRequest},
		{"wrong password", user.LoginRequest{Username: "officer", Password: "nope"}, http.StatusBadRequest},
		{"unknown user", user.LoginRequest{Username: "ghost", Password: "Str0ng!pwd"}, http.StatusBadRequest},
		{"username is cleaned", user.LoginRequest{Username: " OFFICER ", Password: "Str0ng!pwd"}, http.StatusOK},
		{"email", user.LoginRequest{Username: "officer@example.com", Password: "Str0ng!pwd"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/users/login", "", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				decode(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)

				me := do(t, s, http.MethodGet, "/v1/users/me", resp.Token, nil)
				assert.Equal(t, http.StatusOK, me.Code)
			}
		})
	}
}

func TestServer_authentication(t *testing.T) {
	env, s := setup(t)
	officer := env.User(t, "officer", user.RoleOfficer, 0)
	admin := env.User(t, "admin", user.RoleAdmin, 0)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		wantCode int
	}{
		{"missing token", http.MethodGet, "/v1/users/me", "", http.StatusUnauthorized},
		{"malformed token", http.MethodGet, "/v1/users/me", "not.a.token", http.StatusUnauthorized},
		{"admin only", http.MethodGet, "/v1/users", tokenOf(t, s, officer), http.StatusForbidden},
		{"admin", http.MethodGet, "/v1/users", tokenOf(t, s, admin), http.StatusOK},
		{"roles", http.MethodGet, "/v1/users/roles", tokenOf(t, s, admin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_deactivatedAccount(t *testing.T) {
	env, s := setup(t)
	usr := env.User(t, "officer", user.RoleOfficer, 0)
	token := tokenOf(t, s, usr)

	usr.IsActive = false
	_, err := env.UserRepo.UpdateUser(context.Background(), usr)
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/v1/users/me", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDirectoryApi(t *testing.T) {
	env, s := setup(t)
	token := tokenOf(t, s, env.User(t, "admin", user.RoleAdmin, 0))

	rec := do(t, s, http.MethodPost, "/v1/colleges", token, NewCollege{Name: "Science"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var col struct {
		ID int `json:"id"`
	}
	decode(t, rec, &col)

	rec = do(t, s, http.MethodPost, "/v1/departments", token, map[string]interface{}{"name": "Physics", "college_id": col.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dep struct {
		ID int `json:"id"`
	}
	decode(t, rec, &dep)

	rec = do(t, s, http.MethodGet, "/v1/departments/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	t.Run("students", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/students", token, map[string]interface{}{
			"matric_no": "PHY/001", "name": "Ada", "level": "500", "department_id": dep.ID,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "level")

		rec = do(t, s, http.MethodPost, "/v1/students", token, map[string]interface{}{
			"matric_no": "PHY/001", "name": "Ada", "level": "100", "department_id": 999,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, s, http.MethodPost, "/v1/students", token, map[string]interface{}{
			"matric_no": "PHY/001", "name": "Ada", "level": "100", "department_id": dep.ID,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = do(t, s, http.MethodPost, "/v1/students", token, map[string]interface{}{
			"matric_no": "phy/001", "name": "Ada Again", "level": "100", "department_id": dep.ID,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("registrations", func(t *testing.T) {
		stud := env.Student(t, "phy/002", grading.Level100, institution.DepartmentID(dep.ID))
		course := env.Course(t, "PHY101", 3, institution.DepartmentID(dep.ID))

		body := map[string]interface{}{
			"student_id": stud.ID, "course_ids": []string{course.ID},
			"session": current, "semester": "First", "level": "100",
		}
		rec := do(t, s, http.MethodPost, "/v1/registrations", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		path := "/v1/standings?student_id=" + stud.ID + "&session=" + current + "&semester=first&level=100"
		rec = do(t, s, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var std standing.Record
		decode(t, rec, &std)
		assert.Equal(t, 3, std.TCC)
		assert.Equal(t, 0, std.TCE)
	})
}

func TestResultApi(t *testing.T) {
	env, s := setup(t)
	admin := env.User(t, "admin", user.RoleAdmin, 0)
	token := tokenOf(t, s, admin)
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	course := env.Course(t, "PHY101", 3, dep.ID)

	score := func(total float64) map[string]interface{} {
		return map[string]interface{}{
			"student_id": stud.ID, "course_id": course.ID,
			"session": current, "semester": "first", "level": "100", "total": total,
		}
	}

	rec := do(t, s, http.MethodPost, "/v1/results", token, score(120))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/results", token, score(38))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		ID    string `json:"id"`
		Grade string `json:"grade"`
	}
	decode(t, rec, &res)
	assert.Equal(t, "F", res.Grade)

	rec = do(t, s, http.MethodPost, "/v1/results", token, score(50))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "duplicate result")

	rec = do(t, s, http.MethodPost, "/v1/results/"+res.ID+"/moderation", token, map[string]interface{}{
		"proposed_total": 45, "proof": "senate minutes", "authorized_by": "HOD Physics",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/v1/results/"+res.ID+"/moderation/approve", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &res)
	assert.Equal(t, "D", res.Grade)

	rec = do(t, s, http.MethodPost, "/v1/results/"+res.ID+"/moderation/reject", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &res)
	assert.Equal(t, "F", res.Grade, "rejecting an approved moderation restores the original score")

	rec = do(t, s, http.MethodPost, "/v1/results/"+res.ID+"/moderation/reject", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing to reject")

	rec = do(t, s, http.MethodDelete, "/v1/courses/"+course.ID+"/results?session="+current+"&semester=first", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var deleted DeletedResponse
	decode(t, rec, &deleted)
	assert.Equal(t, 1, deleted.Deleted)

	rec = do(t, s, http.MethodGet, "/v1/results/"+res.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStandingApi_approvalChain(t *testing.T) {
	env, s := setup(t)
	dep := env.Department(t, "Physics")
	other := env.Department(t, "Chemistry")
	officer := env.User(t, "officer", user.RoleOfficer, dep.ID)
	outsider := env.User(t, "outsider", user.RoleOfficer, other.ID)
	hod := env.User(t, "hod", user.RoleHOD, dep.ID)
	dean := env.User(t, "dean", user.RoleDean, dep.ID)
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	course := env.Course(t, "PHY101", 3, dep.ID)
	key := grading.Key{StudentID: stud.ID, Session: current, Semester: grading.SemesterFirst, Level: grading.Level100}
	env.Score(t, key, course.ID, 70)

	std, err := env.StandingSvc.GetByKey(context.Background(), key)
	require.NoError(t, err)
	path := "/v1/standings/" + std.ID

	decide := func(usr user.User, stage string, approve bool) *httptest.ResponseRecorder {
		return do(t, s, http.MethodPost, path+"/decision", tokenOf(t, s, usr), map[string]interface{}{
			"stage": stage, "approve": approve, "note": "ok",
		})
	}
	pending := func(usr user.User) []standing.Record {
		rec := do(t, s, http.MethodGet, "/v1/standings/pending?session="+current, tokenOf(t, s, usr), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var recs []standing.Record
		decode(t, rec, &recs)
		return recs
	}

	assert.Len(t, pending(officer), 1)
	assert.Empty(t, pending(outsider))
	assert.Empty(t, pending(hod))

	assert.Equal(t, http.StatusBadRequest, decide(hod, "hod", true).Code, "officer has not approved")
	assert.Equal(t, http.StatusForbidden, decide(outsider, "officer", true).Code)
	assert.Equal(t, http.StatusForbidden, decide(officer, "hod", true).Code)

	rec := do(t, s, http.MethodPost, path+"/decision", tokenOf(t, s, officer), map[string]interface{}{"stage": "officer"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "approve is required")

	require.Equal(t, http.StatusOK, decide(officer, "officer", true).Code)
	assert.Empty(t, pending(officer))
	assert.Len(t, pending(hod), 1)

	rec = do(t, s, http.MethodPost, path+"/flag", tokenOf(t, s, hod), map[string]interface{}{
		"stage": "hod", "flagged": true, "note": "check PHY101",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var flagged standing.Record
	decode(t, rec, &flagged)
	assert.True(t, flagged.HOD.Flagged)
	assert.False(t, flagged.HOD.Approved)

	require.Equal(t, http.StatusOK, decide(hod, "hod", true).Code)
	assert.Equal(t, http.StatusBadRequest, decide(officer, "officer", false).Code, "hod already approved")
	rec = decide(dean, "dean", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var final standing.Record
	decode(t, rec, &final)
	assert.True(t, final.FullyApproved())
	assert.Equal(t, dean.ID, final.Dean.Approver.ID)

	rec = do(t, s, http.MethodGet, path, tokenOf(t, s, officer), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/standings/pending", tokenOf(t, s, env.User(t, "student", "", 0)), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStandingApi_recompute(t *testing.T) {
	env, s := setup(t)
	token := tokenOf(t, s, env.User(t, "admin", user.RoleAdmin, 0))
	dep := env.Department(t, "Physics")
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)

	body := RecomputeRequest{Keys: []StandingQuery{{StudentID: stud.ID, Session: current, Semester: "first", Level: "100"}}}
	rec := do(t, s, http.MethodPost, "/v1/standings/recompute", token, body)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	body.Keys[0].Session = "2023-2024"
	rec = do(t, s, http.MethodPost, "/v1/standings/recompute", token, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/standings/recompute", token, RecomputeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionApi_close(t *testing.T) {
	env, s := setup(t)
	admin := env.User(t, "admin", user.RoleAdmin, 0)
	token := tokenOf(t, s, admin)

	rec := do(t, s, http.MethodPost, "/v1/sessions", token, session.NewSession{Name: current})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess session.Session
	decode(t, rec, &sess)
	assert.True(t, sess.IsCurrent)

	rec = do(t, s, http.MethodPost, "/v1/sessions", token, session.NewSession{Name: "2023"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/sessions/current", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	dep := env.Department(t, "Physics")
	course := env.Course(t, "PHY101", 3, dep.ID)
	stud := env.Student(t, "phy/001", grading.Level100, dep.ID)
	key := grading.Key{StudentID: stud.ID, Session: current, Semester: grading.SemesterFirst, Level: grading.Level100}
	env.Score(t, key, course.ID, 70)

	closePath := "/v1/sessions/" + sess.ID + "/close"

	t.Run("non admins are rejected", func(t *testing.T) {
		officer := env.User(t, "officer", user.RoleOfficer, dep.ID)
		rec := do(t, s, http.MethodPost, closePath, tokenOf(t, s, officer), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("pending approvals block", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/sessions/"+sess.ID+"/readiness", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var rd session.Readiness
		decode(t, rec, &rd)
		assert.False(t, rd.Ready)

		rec = do(t, s, http.MethodPost, closePath, token, nil)
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		var body struct {
			Error   string `json:"error"`
			Reasons []struct {
				Code string `json:"code"`
			} `json:"reasons"`
		}
		decode(t, rec, &body)
		assert.NotEmpty(t, body.Error)
		require.Len(t, body.Reasons, 1)
		assert.Equal(t, session.ReasonPendingApproval, body.Reasons[0].Code)
	})

	t.Run("closes once approved", func(t *testing.T) {
		std, err := env.StandingSvc.GetByKey(context.Background(), key)
		require.NoError(t, err)
		env.ApproveAll(t, admin, std.ID)

		rec := do(t, s, http.MethodPost, closePath, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var closed session.Session
		decode(t, rec, &closed)
		assert.Equal(t, session.StatusCompleted, closed.Status)
		require.NotNil(t, closed.PromotionStats)
		assert.Equal(t, 1, closed.PromotionStats.TotalProcessed)

		rec = do(t, s, http.MethodPost, closePath, token, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, "already completed")
	})

	rec = do(t, s, http.MethodGet, "/v1/sessions/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
