package classifier

import (
	"context"
	"strings"
)

// Classifier возвращает метку категории для снимка
type Classifier interface {
	Classify(ctx context.Context, image []byte, contentType string) (string, error)
}

type Func func(ctx context.Context, image []byte, contentType string) (string, error)

func (f Func) Classify(ctx context.Context, image []byte, contentType string) (string, error) {
	return f(ctx, image, contentType)
}

// Normalize обрезает пробелы, кавычки и точку в конце и приводит к нижнему регистру
func Normalize(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.Trim(l, "\"'`.*")
	return strings.TrimSpace(l)
}

// IsNoIssue распознаёт ответ модели "проблемы нет"
func IsNoIssue(label string) bool {
	l := Normalize(label)
	return l == "none" || strings.Contains(l, "none") || strings.Contains(l, "no issue")
}
