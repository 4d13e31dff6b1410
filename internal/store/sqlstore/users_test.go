package sqlstore

import (
	"testing"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/models"
)

func createUser(t *testing.T, username string) {
	t.Helper()
	if err := testStore.CreateUser(ctx, &models.User{Username: username, Password: "hash"}); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
}

func TestCreateUser(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	err := testStore.CreateUser(ctx, &models.User{Username: "testuser", Password: "password123"})
	if err != nil {
		t.Errorf("Failed to create user: %v", err)
	}

	// Test duplicate user
	err = testStore.CreateUser(ctx, &models.User{Username: "testuser", Password: "password123"})
	if !apperr.Is(err, apperr.Conflict) {
		t.Errorf("Expected conflict when creating duplicate user, got %v", err)
	}
}

func TestGetUserByUsername(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	createUser(t, "testuser")

	user, err := testStore.GetUserByUsername(ctx, "testuser")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}

	if user.Username != "testuser" {
		t.Errorf("Expected username 'testuser', got '%s'", user.Username)
	}
	if user.UserCode != "" {
		t.Errorf("Expected no user code yet, got '%s'", user.UserCode)
	}

	_, err = testStore.GetUserByUsername(ctx, "nonexistent")
	if !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Expected not found for nonexistent user, got %v", err)
	}
}

func TestSetUserCodeOnlyOnce(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	createUser(t, "alice")
	createUser(t, "bob")

	set, err := testStore.SetUserCode(ctx, "alice", "abcdXY-1234")
	if err != nil || !set {
		t.Fatalf("Expected first assignment to succeed, got %v %v", set, err)
	}

	set, err = testStore.SetUserCode(ctx, "alice", "zzzzZZ-0000")
	if err != nil || set {
		t.Errorf("Expected second assignment to be skipped, got %v %v", set, err)
	}

	user, _ := testStore.GetUserByCode(ctx, "abcdXY-1234")
	if user == nil || user.Username != "alice" {
		t.Errorf("Expected code to resolve to alice, got %+v", user)
	}

	_, err = testStore.SetUserCode(ctx, "bob", "abcdXY-1234")
	if !apperr.Is(err, apperr.Conflict) {
		t.Errorf("Expected conflict on duplicate code, got %v", err)
	}
}

func TestRenameUserMovesMembershipAndOwnership(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()

	createUser(t, "alice")
	createUser(t, "bob")
	testStore.CreateGroup(ctx, "devs", "alice")

	if err := testStore.RenameUser(ctx, "alice", "bob"); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("Expected conflict renaming onto a taken name, got %v", err)
	}

	if err := testStore.RenameUser(ctx, "alice", "alicia"); err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}

	group, _ := testStore.GetGroup(ctx, "devs")
	if group.Owner != "alicia" {
		t.Errorf("Expected owner 'alicia', got '%s'", group.Owner)
	}
	isMember, _ := testStore.IsMember(ctx, "devs", "alicia")
	if !isMember {
		t.Error("Expected renamed user to keep membership")
	}

	if err := testStore.RenameUser(ctx, "ghost", "spirit"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Expected not found renaming a missing user, got %v", err)
	}
}
