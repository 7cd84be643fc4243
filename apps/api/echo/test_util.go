package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/project"
	"github.com/fyplink/backend/core/user"
	emailsvc "github.com/fyplink/backend/services/email"
	eventsvc "github.com/fyplink/backend/services/events"
	logsvc "github.com/fyplink/backend/services/logger"
	dummydb "github.com/fyplink/backend/storage/database/dummy"
)

func testCtx() context.Context { return context.Background() }

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testServer struct {
	server      Server
	userRepo    user.Repository
	projectRepo project.Repository
	userSvc     user.ServiceInterface
	projectSvc  project.ServiceInterface
	events      *eventsvc.DummyPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("newTestServer() failed: %v", err)
	}
	userRepo := dummydb.NewUserRepository(db)
	projectRepo := dummydb.NewProjectRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock()
	events := eventsvc.NewDummyPublisher()
	userSvc := user.NewService(userRepo, mailSvc)
	projectSvc := project.NewService(projectRepo, mailSvc, events)

	srv := NewServer(&Options{
		Address:        "localhost:8000",
		DisableReqLogs: true,
		UserSvc:        userSvc,
		ProjectSvc:     projectSvc,
		Logger:         logsvc.NewZapLogger(core.Conf),
	})
	return &testServer{
		server:      srv,
		userRepo:    userRepo,
		projectRepo: projectRepo,
		userSvc:     userSvc,
		projectSvc:  projectSvc,
		events:      events,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

func createTestUser(t *testing.T, repo user.Repository, name, uname, email, university, pwd string, roles []string, isActive bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:       name,
		Username:   uname,
		Email:      email,
		University: university,
		Roles:      roles,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createTestUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(testCtx(), usr)
	if err != nil {
		t.Fatalf("createTestUser() failed: %v", err)
	}
	return usr
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
