package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizmasterhq/quizmaster/internal/attempt"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/response"
)

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func writeErr(w http.ResponseWriter, status int, code response.ErrCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": string(code), "message": response.GetMessage(code)},
	})
}

func TestLoginInstallsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req model.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "amira@example.com" {
			t.Errorf("email = %q", req.Email)
		}
		writeData(w, http.StatusOK, map[string]interface{}{
			"token": "tok-123",
			"user":  model.User{ID: 7, Email: req.Email, Role: model.RoleStudent},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.Login(context.Background(), "amira@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok-123" || c.token != "tok-123" {
		t.Fatalf("token not installed: %q / %q", res.Token, c.token)
	}
	if res.User.ID != 7 {
		t.Fatalf("user id = %d", res.User.ID)
	}
}

func TestSetRoleInstallsFreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/role" {
			t.Errorf("path = %s", r.URL.Path)
		}
		// The pre-role token must not survive: role guards read the JWT
		// claim, so the client has to switch to the reissued token.
		writeData(w, http.StatusOK, map[string]interface{}{
			"token": "tok-student",
			"user":  model.User{ID: 7, Role: model.RoleStudent},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken("tok-unset")
	if err := c.SetRole(context.Background(), model.RoleStudent); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if c.token != "tok-student" {
		t.Fatalf("token = %q, want reissued tok-student", c.token)
	}
}

func TestBearerTokenIsSent(t *testing.T) {
	testID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-xyz" {
			t.Errorf("Authorization = %q", got)
		}
		writeData(w, http.StatusOK, map[string]interface{}{
			"test": model.TestPayload{ID: testID, Title: "algebra", DurationMinutes: 10},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken("tok-xyz")
	payload, err := c.FetchTest(context.Background(), testID)
	if err != nil {
		t.Fatalf("FetchTest: %v", err)
	}
	if payload.ID != testID || payload.Title != "algebra" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestLatestAttemptMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, response.ErrAttemptNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.LatestAttempt(context.Background(), uuid.New(), 1)
	if !errors.Is(err, attempt.ErrNoAttempt) {
		t.Fatalf("err = %v, want ErrNoAttempt", err)
	}
}

func TestGateErrorsMapToSentinels(t *testing.T) {
	cases := []struct {
		code response.ErrCode
		want error
	}{
		{response.ErrTestInactive, attempt.ErrTestInactive},
		{response.ErrTestNotStarted, attempt.ErrTestNotStarted},
		{response.ErrTestEnded, attempt.ErrTestEnded},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeErr(w, http.StatusForbidden, tc.code)
		}))
		c := New(srv.URL)
		_, err := c.StartAttempt(context.Background(), uuid.New(), 1)
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.code, err, tc.want)
		}
	}
}

func TestSubmitAttemptSendsAnswers(t *testing.T) {
	testID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/api/v1/student/tests/" + testID.String() + "/attempt/submit"
		if r.URL.Path != want {
			t.Errorf("path = %s, want %s", r.URL.Path, want)
		}
		var req model.SubmitAttemptRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Answers) != 3 || req.Answers[1] != -1 {
			t.Errorf("answers = %v", req.Answers)
		}
		writeData(w, http.StatusOK, map[string]interface{}{
			"outcome": model.SubmitOutcome{Status: model.AttemptStatusSubmitted},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.SubmitAttempt(context.Background(), testID, 1, []int{2, -1, 0}); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
}

func TestSubmitAttemptAlreadySubmittedOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]interface{}{
			"outcome": model.SubmitOutcome{
				Status:           model.AttemptStatusSubmitted,
				AlreadySubmitted: true,
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.SubmitAttempt(context.Background(), uuid.New(), 1, []int{0})
	if !errors.Is(err, attempt.ErrAlreadySubmitted) {
		t.Fatalf("err = %v, want ErrAlreadySubmitted", err)
	}
}

func TestValidationErrorIsTerminalRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusBadRequest, response.ErrAnswerCountMismatch)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.SubmitAttempt(context.Background(), uuid.New(), 1, []int{0, 1})
	if !errors.Is(err, attempt.ErrSubmitRejected) {
		t.Fatalf("err = %v, want ErrSubmitRejected", err)
	}
}

func TestStartAttemptReturnsAttempt(t *testing.T) {
	testID := uuid.New()
	attemptID := uuid.New()
	started := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusCreated, map[string]interface{}{
			"attempt": model.Attempt{
				ID:        attemptID,
				TestID:    testID,
				StudentID: 9,
				Status:    model.AttemptStatusInProgress,
				StartedAt: started,
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	att, err := c.StartAttempt(context.Background(), testID, 9)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if att.ID != attemptID || att.Status != model.AttemptStatusInProgress {
		t.Fatalf("attempt = %+v", att)
	}
	if !att.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", att.StartedAt, started)
	}
}
