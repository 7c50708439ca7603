package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileSender пишет письма в файлы каталога — удобно при локальной разработке,
// когда настоящий почтовый сервер не подключён
type FileSender struct {
	dir string
}

// NewFileSender создаёт отправитель, пишущий письма в каталог dir
func NewFileSender(dir string) (*FileSender, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога писем: %w", err)
	}
	return &FileSender{dir: dir}, nil
}

// Send сохраняет письмо в файл
func (s *FileSender) Send(_ context.Context, msg Message) error {
	name := fmt.Sprintf("%d_%s.txt", time.Now().UnixNano(), msg.To)
	content := fmt.Sprintf("To: %s\nSubject: %s\n\n%s\n", msg.To, msg.Subject, msg.Body)
	return os.WriteFile(filepath.Join(s.dir, name), []byte(content), 0o644)
}
