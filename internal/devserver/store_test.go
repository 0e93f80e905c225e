package devserver

import "testing"

func TestStore_UserLifecycle(t *testing.T) {
	s := NewStore()

	user, err := s.CreateUser("a@b.c", "pw", "Ada")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Profile.ID != user.ID || user.Profile.Name != "Ada" {
		t.Fatalf("unexpected profile: %+v", user.Profile)
	}

	if _, err := s.CreateUser("a@b.c", "pw2", "Dup"); err == nil {
		t.Fatalf("expected duplicate email error")
	}

	if _, ok := s.Authenticate("a@b.c", "pw"); !ok {
		t.Fatalf("expected auth success")
	}
	if _, ok := s.Authenticate("a@b.c", "wrong"); ok {
		t.Fatalf("expected auth failure on wrong password")
	}
	if _, ok := s.Authenticate("missing@b.c", "pw"); ok {
		t.Fatalf("expected auth failure on unknown email")
	}

	got, ok := s.GetUser(user.ID)
	if !ok || got.Email != "a@b.c" {
		t.Fatalf("GetUser: %+v ok=%v", got, ok)
	}
}

func TestStore_Comments(t *testing.T) {
	s := NewStore()

	first, err := s.AppendComment("T1", "u1", "hello", false, 1000)
	if err != nil {
		t.Fatalf("AppendComment: %v", err)
	}
	if first.ID == "" || first.TicketID != "T1" {
		t.Fatalf("unexpected comment: %+v", first)
	}
	if _, err := s.AppendComment("T1", "u1", "", false, 1000); err == nil {
		t.Fatalf("expected error for empty body")
	}
	if _, err := s.AppendComment("", "u1", "x", false, 1000); err == nil {
		t.Fatalf("expected error for missing ticket id")
	}

	s.AppendComment("T1", "u2", "agent reply", true, 2000)
	comments := s.ListComments("T1")
	if len(comments) != 2 || comments[0].Body != "hello" || !comments[1].Internal {
		t.Fatalf("unexpected comments: %+v", comments)
	}
	if len(s.ListComments("T2")) != 0 {
		t.Fatalf("expected no comments for other ticket")
	}
}

func TestStore_DeviceTokens(t *testing.T) {
	s := NewStore()

	if err := s.RegisterDeviceToken("u1", "dev-1", "fcm-old", 1000); err != nil {
		t.Fatalf("RegisterDeviceToken: %v", err)
	}
	// refresh replaces, second device adds
	if err := s.RegisterDeviceToken("u1", "dev-1", "fcm-new", 2000); err != nil {
		t.Fatalf("RegisterDeviceToken: %v", err)
	}
	if err := s.RegisterDeviceToken("u1", "dev-2", "fcm-2", 3000); err != nil {
		t.Fatalf("RegisterDeviceToken: %v", err)
	}

	tokens := s.ListDeviceTokens("u1")
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].Token != "fcm-new" {
		t.Fatalf("expected refresh to replace token, got %+v", tokens[0])
	}

	if err := s.RegisterDeviceToken("u1", "", "fcm", 1000); err == nil {
		t.Fatalf("expected error for missing device id")
	}
	if err := s.RegisterDeviceToken("u1", "dev-3", "", 1000); err == nil {
		t.Fatalf("expected error for missing token")
	}
}
