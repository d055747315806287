package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"supportchat-backend/internal/model"
	"supportchat-backend/pkg/logger"
)

const (
	ExportFormatJSON = "json"
	ExportFormatText = "text"
)

// Exporter 把会话导出为可下载的文件
// 配置了目录时同时在磁盘保留一份
type Exporter struct {
	format string
	dir    string
	now    func() time.Time
}

type exportDocument struct {
	SessionID  string          `json:"session_id"`
	Title      string          `json:"title"`
	Status     model.Status    `json:"status"`
	ExportedAt time.Time       `json:"exported_at"`
	Messages   []model.Message `json:"messages"`
}

func NewExporter(format, dir string) *Exporter {
	if format != ExportFormatText {
		format = ExportFormatJSON
	}
	return &Exporter{
		format: format,
		dir:    dir,
		now:    time.Now,
	}
}

func (e *Exporter) Init() error {
	if e.dir == "" {
		return nil
	}
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

// Export 返回导出文件名和内容
func (e *Exporter) Export(session *model.Session) (string, []byte, error) {
	if session == nil {
		return "", nil, ErrInvalidData
	}

	exportedAt := e.now()
	var (
		data []byte
		ext  string
		err  error
	)

	switch e.format {
	case ExportFormatText:
		data = []byte(renderTranscript(session, exportedAt))
		ext = "txt"
	default:
		data, err = json.MarshalIndent(exportDocument{
			SessionID:  session.ID,
			Title:      session.Title,
			Status:     session.Status,
			ExportedAt: exportedAt,
			Messages:   session.Messages,
		}, "", "  ")
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		ext = "json"
	}

	filename := fmt.Sprintf("chat-%s-%s.%s", session.ID, exportedAt.Format("20060102-150405"), ext)

	if e.dir != "" {
		if err := writeFileAtomic(filepath.Join(e.dir, filename), data); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
		logger.Infof("Exported session %s to %s", session.ID, filename)
	}

	return filename, data, nil
}

func renderTranscript(session *model.Session, exportedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", session.Title, session.Status)
	fmt.Fprintf(&b, "Exported %s\n\n", exportedAt.Format(time.RFC3339))
	for _, msg := range session.Messages {
		who := string(msg.Sender)
		if !msg.IsConversational() {
			who += "/" + string(msg.Type)
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), who, msg.Text)
	}
	return b.String()
}

func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}
