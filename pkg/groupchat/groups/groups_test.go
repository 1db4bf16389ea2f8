package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/tijee/groupchat/pkg/groupchat/auth"
	"github.com/tijee/groupchat/pkg/groupchat/database"
	"github.com/tijee/groupchat/pkg/groupchat/models"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	user := models.User{
		Email:      email,
		Name:       "Test User",
		SystemRole: models.SystemRoleUser,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func createTestGroup(t *testing.T, db *gorm.DB, owner models.User, name string, members ...models.User) models.Group {
	group := models.Group{OwnerID: owner.ID, Name: name}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("Failed to create test group: %v", err)
	}
	for _, m := range members {
		if err := db.Create(&models.GroupMembership{GroupID: group.ID, UserID: m.ID}).Error; err != nil {
			t.Fatalf("Failed to add member: %v", err)
		}
	}
	return group
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(NewService(db, zerolog.Nop()))

	groups := r.Group("/group")
	groups.Use(auth.IdentityMiddleware(nil))
	handler.RegisterRoutes(groups)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
}

// doRequest sends body as JSON (when non-nil) with the user's token (when non-zero)
func doRequest(router *gin.Engine, method, path string, body interface{}, user models.User) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = &bytes.Buffer{}
	}

	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if user.ID != 0 {
		req.Header.Set("Authorization", getAuthHeader(user))
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var response map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &response)
	return resp, response
}

func TestCreateGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")

	body := CreateCommand{
		Name:        "Test Group",
		Description: "A test group",
	}
	resp, response := doRequest(router, "POST", "/group", body, user)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if response["result"] != "success" {
		t.Errorf("Expected result success, got %v", response["result"])
	}
	if response["name"] != "Test Group" {
		t.Errorf("Expected name 'Test Group', got %v", response["name"])
	}
	if uint(response["owner_id"].(float64)) != user.ID {
		t.Errorf("Expected owner %d, got %v", user.ID, response["owner_id"])
	}

	var count int64
	db.Model(&models.GroupMembership{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no membership rows for the owner, got %d", count)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")

	tests := []struct {
		name string
		body CreateCommand
	}{
		{"empty name", CreateCommand{Name: ""}},
		{"blank name", CreateCommand{Name: "   "}},
		{"long name", CreateCommand{Name: strings.Repeat("a", 61)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, response := doRequest(router, "POST", "/group", tt.body, user)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.Code)
			}
			if response["result"] != "error" {
				t.Errorf("Expected result error, got %v", response["result"])
			}
		})
	}
}

func TestCreateGroupDuplicateName(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "test@example.com")
	other := createTestUser(t, db, "other@example.com")

	doRequest(router, "POST", "/group", CreateCommand{Name: "team"}, user)

	resp, _ := doRequest(router, "POST", "/group", CreateCommand{Name: "team"}, user)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for duplicate name, got %d", resp.Code)
	}

	resp, _ = doRequest(router, "POST", "/group", CreateCommand{Name: "team"}, other)
	if resp.Code != http.StatusCreated {
		t.Errorf("Expected another owner to reuse the name, got %d", resp.Code)
	}
}

func TestCreateGroupUnauthenticated(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)

	_, response := doRequest(router, "POST", "/group", CreateCommand{Name: "team"}, models.User{})
	if response["result"] != "error" {
		t.Errorf("Expected result error, got %v", response["result"])
	}
}

func TestListGroups(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	member := createTestUser(t, db, "member@example.com")
	stranger := createTestUser(t, db, "stranger@example.com")

	createTestGroup(t, db, owner, "first", member)
	createTestGroup(t, db, owner, "second")

	tests := []struct {
		user models.User
		want int
	}{
		{owner, 2},
		{member, 1},
		{stranger, 0},
		{models.User{}, 0},
	}

	for _, tt := range tests {
		resp, _ := doRequest(router, "GET", "/group", nil, tt.user)
		if resp.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
		}

		var body struct {
			Result string          `json:"result"`
			Groups []GroupResponse `json:"groups"`
		}
		json.Unmarshal(resp.Body.Bytes(), &body)

		if body.Result != "success" {
			t.Errorf("Expected result success, got %s", body.Result)
		}
		if len(body.Groups) != tt.want {
			t.Errorf("User %d: expected %d groups, got %d", tt.user.ID, tt.want, len(body.Groups))
		}
	}
}

func TestGetGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	member := createTestUser(t, db, "member@example.com")
	stranger := createTestUser(t, db, "stranger@example.com")
	group := createTestGroup(t, db, owner, "team", member)

	resp, _ := doRequest(router, "GET", fmt.Sprintf("/group/%d", group.ID), nil, member)
	var body struct {
		Group GroupResponse `json:"group"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)

	if body.Group.Role != "member" {
		t.Errorf("Expected role member, got %s", body.Group.Role)
	}
	if body.Group.MemberCount != 2 {
		t.Errorf("Expected 2 members, got %d", body.Group.MemberCount)
	}

	_, response := doRequest(router, "GET", fmt.Sprintf("/group/%d", group.ID), nil, stranger)
	if response["result"] != "error" {
		t.Errorf("Expected result error for stranger, got %v", response["result"])
	}

	resp, _ = doRequest(router, "GET", "/group/abc", nil, owner)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad id, got %d", resp.Code)
	}
}

func TestRenameGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	member := createTestUser(t, db, "member@example.com")
	group := createTestGroup(t, db, owner, "team", member)

	body := RenameGroupRequest{GroupID: group.ID, NewName: "renamed"}

	_, response := doRequest(router, "PATCH", "/group", body, member)
	if response["result"] != "error" || response["msg"] != notOwnedMsg {
		t.Errorf("Expected generic error for member, got %v", response)
	}

	_, response = doRequest(router, "PATCH", "/group", RenameGroupRequest{GroupID: 999, NewName: "x"}, owner)
	if response["msg"] != notOwnedMsg {
		t.Errorf("Expected missing group to share the generic message, got %v", response["msg"])
	}

	_, response = doRequest(router, "PATCH", "/group", body, owner)
	if response["result"] != "success" {
		t.Errorf("Expected result success, got %v", response)
	}

	var updated models.Group
	db.First(&updated, group.ID)
	if updated.Name != "renamed" {
		t.Errorf("Expected name 'renamed', got %s", updated.Name)
	}
}

func TestDeleteGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	member := createTestUser(t, db, "member@example.com")
	group := createTestGroup(t, db, owner, "team", member)
	db.Create(&models.Message{SenderID: owner.ID, RecipientType: models.RecipientTypeGroup, RecipientID: group.ID, RawContent: "hi", RenderedContent: "<p>hi</p>"})

	_, response := doRequest(router, "DELETE", "/group", DeleteGroupRequest{Name: "team"}, member)
	if response["result"] != "error" || response["msg"] != notOwnedMsg {
		t.Errorf("Expected generic error for member, got %v", response)
	}

	_, response = doRequest(router, "DELETE", "/group", DeleteGroupRequest{Name: "team"}, owner)
	if response["result"] != "success" {
		t.Fatalf("Expected result success, got %v", response)
	}

	var count int64
	db.Model(&models.Group{}).Count(&count)
	if count != 0 {
		t.Error("Group should be deleted")
	}
	db.Model(&models.GroupMembership{}).Count(&count)
	if count != 0 {
		t.Error("Memberships should be deleted")
	}
	db.Model(&models.Message{}).Count(&count)
	if count != 0 {
		t.Error("Messages should be deleted")
	}
}

func TestDeleteGroupRequiresReference(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")

	resp, _ := doRequest(router, "DELETE", "/group", DeleteGroupRequest{}, owner)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestListMembers(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	m1 := createTestUser(t, db, "m1@example.com")
	m2 := createTestUser(t, db, "m2@example.com")
	stranger := createTestUser(t, db, "stranger@example.com")
	group := createTestGroup(t, db, owner, "team", m2, m1)

	resp, _ := doRequest(router, "GET", fmt.Sprintf("/group/member/%d", group.ID), nil, m1)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Members []uint           `json:"members"`
		Users   []MemberResponse `json:"users"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)

	want := []uint{owner.ID, m1.ID, m2.ID}
	if fmt.Sprint(body.Members) != fmt.Sprint(want) {
		t.Errorf("Expected members %v, got %v", want, body.Members)
	}
	if len(body.Users) != 3 || !body.Users[0].IsOwner {
		t.Errorf("Expected owner first in users, got %+v", body.Users)
	}

	_, response := doRequest(router, "GET", fmt.Sprintf("/group/member/%d", group.ID), nil, stranger)
	if response["result"] != "error" {
		t.Errorf("Expected result error for stranger, got %v", response["result"])
	}
}

func TestAddMember(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	member := createTestUser(t, db, "member@example.com")
	newbie := createTestUser(t, db, "newbie@example.com")
	group := createTestGroup(t, db, owner, "team", member)

	_, response := doRequest(router, "POST", "/group/member", MemberRequest{GroupID: group.ID, UserID: newbie.ID}, member)
	if response["result"] != "error" {
		t.Errorf("Expected member to be refused, got %v", response)
	}

	_, response = doRequest(router, "POST", "/group/member", MemberRequest{GroupID: group.ID, Email: "newbie@example.com"}, owner)
	if response["result"] != "success" || response["msg"] != "Member added" {
		t.Errorf("Expected member added, got %v", response)
	}

	_, response = doRequest(router, "POST", "/group/member", MemberRequest{GroupID: group.ID, UserID: newbie.ID}, owner)
	if response["result"] != "success" || response["msg"] != "User is already a member" {
		t.Errorf("Expected idempotent add, got %v", response)
	}

	_, response = doRequest(router, "POST", "/group/member", MemberRequest{GroupID: group.ID, UserID: 999}, owner)
	if response["result"] != "error" {
		t.Errorf("Expected error for unknown user, got %v", response)
	}

	var count int64
	db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&count)
	if count != 2 {
		t.Errorf("Expected 2 membership rows, got %d", count)
	}
}

func TestRemoveMember(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	member := createTestUser(t, db, "member@example.com")
	group := createTestGroup(t, db, owner, "team", member)

	_, response := doRequest(router, "DELETE", "/group/member", MemberRequest{GroupID: group.ID, UserID: member.ID}, member)
	if response["result"] != "error" {
		t.Errorf("Expected members to be unable to remove themselves, got %v", response)
	}

	_, response = doRequest(router, "DELETE", "/group/member", MemberRequest{GroupID: group.ID, UserID: member.ID}, owner)
	if response["result"] != "success" || response["msg"] != "Member removed" {
		t.Errorf("Expected member removed, got %v", response)
	}

	_, response = doRequest(router, "DELETE", "/group/member", MemberRequest{GroupID: group.ID, UserID: owner.ID}, owner)
	if response["result"] != "success" || response["msg"] != "User was not a member" {
		t.Errorf("Expected removing the owner to be a no-op, got %v", response)
	}
}
