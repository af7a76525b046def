package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"mime/multipart"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Msparihar/ReddiChat/model"
)

// 允许上传的 MIME 类型
var supportedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"audio/mpeg":      true,
	"audio/wav":       true,
	"audio/ogg":       true,
	"audio/m4a":       true,
	"video/mp4":       true,
	"video/webm":      true,
	"video/avi":       true,
	"video/quicktime": true,
	"application/pdf": true,
}

var (
	ErrFileTooLarge    = errors.New("file size exceeds maximum allowed size")
	ErrUnsupportedType = errors.New("file type is not supported")
	ErrMissingFilename = errors.New("filename is required")
)

// ProcessedFile 处理后的上传文件，供模型内容构建与入库使用
type ProcessedFile struct {
	Data          []byte
	Filename      string
	MimeType      string
	FileType      string // image/audio/video/pdf
	Size          int64
	Checksum      string
	IsDuplicate   bool
	Existing      *model.FileAttachment // IsDuplicate 为 true 时指向已有记录
	ImageMetadata map[string]any        // 仅 image，尽力提取
	ExtractedText string                // 仅 pdf
}

// Service 文件接入：校验、去重、分类、内容提取
type Service struct {
	db          *gorm.DB
	maxFileSize int64
}

func NewService(db *gorm.DB, maxFileSize int64) *Service {
	return &Service{db: db, maxFileSize: maxFileSize}
}

// Validate 在读取内容前校验 multipart 头部声明的大小和类型
func (s *Service) Validate(fh *multipart.FileHeader) error {
	if fh.Filename == "" {
		return ErrMissingFilename
	}
	if fh.Size > s.maxFileSize {
		return fmt.Errorf("%w (%.1fMB max)", ErrFileTooLarge, float64(s.maxFileSize)/1024/1024)
	}
	contentType := fh.Header.Get("Content-Type")
	if !supportedMimeTypes[contentType] {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	return nil
}

// classify 根据 MIME 类型归类。调用前已通过允许列表校验
func classify(mimeType string) (string, error) {
	switch {
	case len(mimeType) > 6 && mimeType[:6] == "image/":
		return model.FileTypeImage, nil
	case len(mimeType) > 6 && mimeType[:6] == "audio/":
		return model.FileTypeAudio, nil
	case len(mimeType) > 6 && mimeType[:6] == "video/":
		return model.FileTypeVideo, nil
	case mimeType == "application/pdf":
		return model.FileTypePDF, nil
	default:
		return "", fmt.Errorf("unsupported content type: %s", mimeType)
	}
}

// Checksum 计算内容的 SHA256 十六进制摘要
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Process 处理已读取的文件内容：二次校验大小、去重、分类、提取。
// 同一用户重复上传相同内容时短路返回已有记录，不再提取
func (s *Service) Process(userID uuid.UUID, filename, mimeType string, data []byte) (*ProcessedFile, error) {
	if int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w (%.1fMB max)", ErrFileTooLarge, float64(s.maxFileSize)/1024/1024)
	}
	if !supportedMimeTypes[mimeType] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mimeType)
	}
	if filename == "" {
		return nil, ErrMissingFilename
	}

	checksum := Checksum(data)

	// 按用户查重
	var existing model.FileAttachment
	err := s.db.Where("checksum = ? AND user_id = ?", checksum, userID).First(&existing).Error
	if err == nil {
		log.Printf("[Ingest] duplicate upload, reusing file %s", existing.ID)
		return &ProcessedFile{
			Data:        data,
			Filename:    existing.OriginalFilename,
			MimeType:    existing.MimeType,
			FileType:    existing.FileType,
			Size:        existing.FileSize,
			Checksum:    existing.Checksum,
			IsDuplicate: true,
			Existing:    &existing,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("duplicate lookup failed: %w", err)
	}

	fileType, err := classify(mimeType)
	if err != nil {
		return nil, err
	}

	pf := &ProcessedFile{
		Data:     data,
		Filename: filename,
		MimeType: mimeType,
		FileType: fileType,
		Size:     int64(len(data)),
		Checksum: checksum,
	}

	switch fileType {
	case model.FileTypeImage:
		// 失败只丢元数据，不影响整体流程
		pf.ImageMetadata = extractImageMetadata(data)
	case model.FileTypePDF:
		pf.ExtractedText = ExtractPDFText(data)
	}
	// audio/video 原样透传

	return pf, nil
}
