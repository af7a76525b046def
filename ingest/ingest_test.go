package ingest

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Msparihar/ReddiChat/model"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, uuid.UUID) {
	t.Helper()
	db, err := model.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	user := model.User{Email: "a@b.c", Name: "A", Provider: "google", ProviderID: "1"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	return NewService(db, 1<<20), user.ID
}

func header(filename, contentType string, size int64) *multipart.FileHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	return &multipart.FileHeader{Filename: filename, Header: h, Size: size}
}

func TestValidate(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.Validate(header("a.png", "image/png", 100)); err != nil {
		t.Errorf("valid file rejected: %v", err)
	}
	if err := svc.Validate(header("a.png", "image/png", 2<<20)); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if err := svc.Validate(header("a.exe", "application/x-msdownload", 100)); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if err := svc.Validate(header("", "image/png", 100)); !errors.Is(err, ErrMissingFilename) {
		t.Errorf("expected ErrMissingFilename, got %v", err)
	}
}

func TestProcessImage(t *testing.T) {
	svc, userID := newTestService(t)
	data := pngBytes(t, 64, 48)

	pf, err := svc.Process(userID, "pic.png", "image/png", data)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if pf.FileType != model.FileTypeImage {
		t.Errorf("expected image, got %s", pf.FileType)
	}
	if pf.IsDuplicate {
		t.Error("first upload should not be a duplicate")
	}
	if pf.Checksum != Checksum(data) {
		t.Error("checksum mismatch")
	}
	if pf.ImageMetadata == nil {
		t.Fatal("expected image metadata")
	}
	if pf.ImageMetadata["width"] != 64 || pf.ImageMetadata["height"] != 48 {
		t.Errorf("unexpected dimensions: %v", pf.ImageMetadata)
	}
	if pf.ImageMetadata["format"] != "png" {
		t.Errorf("expected format png, got %v", pf.ImageMetadata["format"])
	}
}

func TestProcessCorruptImage(t *testing.T) {
	svc, userID := newTestService(t)

	// 损坏图片：元数据为空但处理不报错
	pf, err := svc.Process(userID, "bad.png", "image/png", []byte("not an image"))
	if err != nil {
		t.Fatalf("corrupt image should not fail processing: %v", err)
	}
	if pf.ImageMetadata != nil {
		t.Errorf("expected nil metadata for corrupt image, got %v", pf.ImageMetadata)
	}
}

func TestProcessDuplicate(t *testing.T) {
	svc, userID := newTestService(t)
	data := pngBytes(t, 8, 8)

	pf, err := svc.Process(userID, "pic.png", "image/png", data)
	if err != nil {
		t.Fatal(err)
	}

	// 模拟已入库的记录
	fa := model.FileAttachment{
		UserID:           userID,
		Filename:         "stored_pic.png",
		OriginalFilename: "pic.png",
		FileType:         pf.FileType,
		FileSize:         pf.Size,
		MimeType:         pf.MimeType,
		Bucket:           "b",
		ObjectKey:        "k",
		ObjectURL:        "u",
		Checksum:         pf.Checksum,
	}
	if err := svc.db.Create(&fa).Error; err != nil {
		t.Fatal(err)
	}

	// 相同内容再次上传应短路
	dup, err := svc.Process(userID, "renamed.png", "image/png", data)
	if err != nil {
		t.Fatal(err)
	}
	if !dup.IsDuplicate {
		t.Fatal("expected duplicate to be detected")
	}
	if dup.Existing == nil || dup.Existing.ID != fa.ID {
		t.Error("expected existing record to be returned")
	}

	// 其他用户上传相同内容不受影响
	other := model.User{Email: "x@y.z", Name: "X", Provider: "github", ProviderID: "2"}
	svc.db.Create(&other)
	fresh, err := svc.Process(other.ID, "pic.png", "image/png", data)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.IsDuplicate {
		t.Error("duplicate detection should be scoped per user")
	}
}

func TestProcessOversized(t *testing.T) {
	svc, userID := newTestService(t)
	big := make([]byte, 2<<20)
	if _, err := svc.Process(userID, "big.png", "image/png", big); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestProcessAudioPassthrough(t *testing.T) {
	svc, userID := newTestService(t)
	data := []byte{0xff, 0xfb, 0x90, 0x00}

	pf, err := svc.Process(userID, "clip.mp3", "audio/mpeg", data)
	if err != nil {
		t.Fatal(err)
	}
	if pf.FileType != model.FileTypeAudio {
		t.Errorf("expected audio, got %s", pf.FileType)
	}
	if pf.ImageMetadata != nil || pf.ExtractedText != "" {
		t.Error("audio should pass through without extraction")
	}
	if !bytes.Equal(pf.Data, data) {
		t.Error("audio bytes should be unchanged")
	}
}

func TestExtractPDFTextCorrupt(t *testing.T) {
	text := ExtractPDFText([]byte("definitely not a pdf"))
	if !strings.Contains(text, "PDF text extraction failed") {
		t.Errorf("expected failure note, got %q", text)
	}
}

func TestChecksumStable(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	if a != b {
		t.Error("checksum should be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == Checksum([]byte("world")) {
		t.Error("different content should yield different checksum")
	}
}
