package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MayerS22/Taskify/internal/model"
	"github.com/MayerS22/Taskify/internal/task"
)

// pngHeader is enough for content sniffing to say image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func seedUser(t *testing.T, s *Server, email string) *model.User {
	t.Helper()
	user := model.User{Email: email, Password: "x", FirstName: "Test", LastName: "User"}
	if err := s.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func TestMe_ReturnsUserWithoutSecrets(t *testing.T) {
	db := newAPITestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newTestServer(t, db, task.NewService(db, nil, logger, time.Hour))
	user := seedUser(t, s, "me@example.com")
	user.ResetToken = "super-secret"
	db.Save(user)

	w := authedJSON(s, http.MethodGet, "/users/me", bearerFor(t, user.ID, user.Email), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["email"] != "me@example.com" {
		t.Fatalf("unexpected email: %v", resp["email"])
	}
	body := w.Body.String()
	if strings.Contains(body, "super-secret") || strings.Contains(body, `"password"`) {
		t.Fatalf("secrets leaked in response: %s", body)
	}
}

func TestUpdateProfile_PartialPatch(t *testing.T) {
	db := newAPITestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newTestServer(t, db, task.NewService(db, nil, logger, time.Hour))
	user := seedUser(t, s, "profile@example.com")
	bearer := bearerFor(t, user.ID, user.Email)

	w := authedJSON(s, http.MethodPut, "/users/profile", bearer, gin.H{"bio": "gopher", "country": "  Egypt "})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", w.Code, w.Body.String())
	}

	var reloaded model.User
	db.First(&reloaded, user.ID)
	if reloaded.Bio != "gopher" || reloaded.Country != "Egypt" {
		t.Fatalf("unexpected profile: bio=%q country=%q", reloaded.Bio, reloaded.Country)
	}
	if reloaded.FirstName != "Test" {
		t.Fatalf("untouched fields must survive, got %q", reloaded.FirstName)
	}

	// An empty patch is rejected.
	if w := authedJSON(s, http.MethodPut, "/users/profile", bearer, gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty patch: expected 400, got %d", w.Code)
	}
}

func uploadFile(s *Server, bearer, filename string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", filename)
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/users/profile-picture", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", bearer)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestUploadProfilePicture_StoresImage(t *testing.T) {
	db := newAPITestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newTestServer(t, db, task.NewService(db, nil, logger, time.Hour))
	user := seedUser(t, s, "avatar@example.com")

	w := uploadFile(s, bearerFor(t, user.ID, user.Email), "me.png", pngHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", w.Code, w.Body.String())
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.URL, "/uploads/profile-pics/") || !strings.HasSuffix(resp.URL, ".png") {
		t.Fatalf("unexpected url: %q", resp.URL)
	}

	// The file landed on disk and the user points at it.
	onDisk := filepath.Join(s.cfg.App.UploadDir, "profile-pics", filepath.Base(resp.URL))
	if _, err := os.Stat(onDisk); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	var reloaded model.User
	db.First(&reloaded, user.ID)
	if reloaded.AvatarURL != resp.URL {
		t.Fatalf("avatar url not saved, got %q", reloaded.AvatarURL)
	}
}

func TestUploadProfilePicture_RejectsNonImages(t *testing.T) {
	db := newAPITestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newTestServer(t, db, task.NewService(db, nil, logger, time.Hour))
	user := seedUser(t, s, "avatar@example.com")
	bearer := bearerFor(t, user.ID, user.Email)

	// A text payload with an image filename; the sniffer is not fooled.
	w := uploadFile(s, bearer, "notes.png", []byte("just some text pretending"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("text upload: expected 400, got %d body %s", w.Code, w.Body.String())
	}

	var reloaded model.User
	db.First(&reloaded, user.ID)
	if reloaded.AvatarURL != "" {
		t.Fatalf("avatar url must stay empty, got %q", reloaded.AvatarURL)
	}
}

func TestUploadProfilePicture_EnforcesSizeCap(t *testing.T) {
	db := newAPITestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newTestServer(t, db, task.NewService(db, nil, logger, time.Hour))
	s.cfg.App.MaxUploadBytes = 1024
	user := seedUser(t, s, "avatar@example.com")

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 4096)...)
	w := uploadFile(s, bearerFor(t, user.ID, user.Email), "huge.png", big)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversize upload: expected 400, got %d", w.Code)
	}
}
