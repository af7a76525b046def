package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/ledongthuc/pdf"
)

// PDF 最多提取前 10 页
const maxPDFPages = 10

// extractImageMetadata 尽力提取图片宽高/格式/色彩模式，损坏图片返回 nil
func extractImageMetadata(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		log.Printf("[Ingest] image metadata extraction failed: %v", err)
		return nil
	}

	return map[string]any{
		"width":  cfg.Width,
		"height": cfg.Height,
		"format": format,
		"mode":   colorMode(cfg.ColorModel),
	}
}

// colorMode 将标准库色彩模型映射为可读名称，未知模型返回空串
func colorMode(m color.Model) string {
	switch m {
	case color.RGBAModel, color.RGBA64Model:
		return "RGBA"
	case color.NRGBAModel, color.NRGBA64Model:
		return "NRGBA"
	case color.GrayModel, color.Gray16Model:
		return "Gray"
	case color.YCbCrModel:
		return "YCbCr"
	case color.NYCbCrAModel:
		return "NYCbCrA"
	case color.CMYKModel:
		return "CMYK"
	default:
		if _, ok := m.(color.Palette); ok {
			return "Palette"
		}
		return ""
	}
}

// ExtractPDFText 提取 PDF 前 10 页文本并带页码标记。
// 解析失败降级为失败说明文本，不作为错误返回
func ExtractPDFText(data []byte) (text string) {
	// pdf 库对损坏输入可能 panic，统一降级
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Ingest] pdf text extraction panicked: %v", r)
			text = fmt.Sprintf("[PDF text extraction failed: %v]", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Printf("[Ingest] pdf text extraction failed: %v", err)
		return fmt.Sprintf("[PDF text extraction failed: %v]", err)
	}

	numPages := reader.NumPage()
	if numPages > maxPDFPages {
		numPages = maxPDFPages
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("[Ingest] pdf page %d extraction failed: %v", i, err)
			continue
		}
		if strings.TrimSpace(content) != "" {
			pages = append(pages, fmt.Sprintf("Page %d:\n%s", i, content))
		}
	}

	return strings.Join(pages, "\n\n")
}
