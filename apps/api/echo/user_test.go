package echoapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyplink/backend/core/user"
)

func Test_userApi_login(t *testing.T) {
	ts := newTestServer(t)

	pwd := "LePass#123"
	usr := createTestUser(t, ts.userRepo, "Active User", "activeusr", "active@test.test", "", pwd, nil, true)
	createTestUser(t, ts.userRepo, "Inactive", "inactiveusr", "inactive@test.test", "", pwd, nil, false)

	tests := []httpTest{
		{
			name:     "empty credentials",
			body:     marshallObj(t, LoginRequest{}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown user",
			body:     marshallObj(t, LoginRequest{Username: "whoami", Password: pwd}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "wrong password",
			body:     marshallObj(t, LoginRequest{Username: usr.Username, Password: "nope"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "deactivated account",
			body:     marshallObj(t, LoginRequest{Username: "inactiveusr", Password: pwd}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "login by username",
			body:     marshallObj(t, LoginRequest{Username: usr.Username, Password: pwd}),
			wantCode: http.StatusOK,
		},
		{
			name:     "login by email",
			body:     marshallObj(t, LoginRequest{Username: usr.Email, Password: pwd}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(newRequest(http.MethodPost, "/v1/users/login", tt.body))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_query(t *testing.T) {
	ts := newTestServer(t)

	admin := createTestUser(t, ts.userRepo, "Admin", "theadmin", "admin@test.test", "", "", []string{user.RoleAdmin}, true)
	student := createTestUser(t, ts.userRepo, "Student", "thestudent", "student@test.test", "", "", []string{user.RoleStudent}, true)
	teacher := createTestUser(t, ts.userRepo, "Teacher", "theteacher", "teacher@mit.test", "MIT", "", []string{user.RoleTeacher}, true)

	adminToken := getToken(t, admin)
	studentToken := getToken(t, student)

	path := func(params url.Values) string { return "/v1/users?" + params.Encode() }

	tests := []httpTest{
		{name: "anonymous", path: "/v1/users", wantCode: http.StatusUnauthorized},
		{name: "non-admin", path: "/v1/users", token: studentToken, wantCode: http.StatusForbidden},
		{
			name: "all users", path: "/v1/users", token: adminToken, wantCode: http.StatusOK,
			wantData: marshallObj(t, []user.User{admin, student, teacher}),
		},
		{
			name: "filter by role", path: path(url.Values{"role": {user.RoleTeacher}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallObj(t, []user.User{teacher}),
		},
		{
			name: "filter by university", path: path(url.Values{"university": {"mit"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallObj(t, []user.User{teacher}),
		},
		{
			name: "search", path: path(url.Values{"search": {"thestudent"}}), token: adminToken,
			wantCode: http.StatusOK, wantData: marshallObj(t, []user.User{student}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(newAuthRequest(http.MethodGet, tt.path, tt.token))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	ts := newTestServer(t)

	admin := createTestUser(t, ts.userRepo, "Admin", "theadmin", "admin@test.test", "", "", []string{user.RoleAdmin}, true)
	usr := createTestUser(t, ts.userRepo, "Someone", "someone", "someone@test.test", "", "", []string{user.RoleStudent}, true)
	other := createTestUser(t, ts.userRepo, "Other", "othersome", "other@test.test", "", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{name: "own profile", path: "/v1/users/" + usr.ID, token: getToken(t, usr), wantCode: http.StatusOK, wantData: marshallObj(t, usr)},
		{name: "admin reads any", path: "/v1/users/" + usr.ID, token: getToken(t, admin), wantCode: http.StatusOK, wantData: marshallObj(t, usr)},
		{name: "peeking is a 404", path: "/v1/users/" + usr.ID, token: getToken(t, other), wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(newAuthRequest(http.MethodGet, tt.path, tt.token))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_passwordResetFlow(t *testing.T) {
	ts := newTestServer(t)
	createTestUser(t, ts.userRepo, "Forgetful", "forgetful", "forgetful@test.test", "", "OldPass#123", nil, true)

	rec := ts.do(newRequest(http.MethodPost, "/v1/users/password-reset",
		marshallObj(t, PasswordResetRequest{Email: "forgetful@test.test"})))
	assert.Equal(t, http.StatusOK, rec.Code)

	// same response for unknown emails
	rec = ts.do(newRequest(http.MethodPost, "/v1/users/password-reset",
		marshallObj(t, PasswordResetRequest{Email: "unknown@test.test"})))
	assert.Equal(t, http.StatusOK, rec.Code)

	// garbage token is rejected
	rec = ts.do(newRequest(http.MethodPost, "/v1/users/password-reset-confirm",
		marshallObj(t, user.ResetUserPassword{
			UID:             "bogus",
			Token:           "bogus",
			Password:        "NewPass#123",
			PasswordConfirm: "NewPass#123",
		})))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
