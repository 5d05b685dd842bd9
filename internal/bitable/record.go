package bitable

import (
	"fmt"
	"time"

	"github.com/vincent19951222/quiz-website/internal/domain"
)

// Record is the remote-table projection of an attempt. It is rebuilt on
// demand for every sync and never persisted locally. The environment
// metadata is not part of the table schema; it is kept for audit logging.
type Record struct {
	Fields map[string]any     `json:"fields"`
	Env    domain.Environment `json:"-"`
}

// BuildRecord shapes an attempt into the table's localized field map.
func BuildRecord(attempt domain.Attempt, env domain.Environment) Record {
	viewed := "否"
	if attempt.AnswersViewed {
		viewed = "是"
	}
	return Record{Env: env, Fields: map[string]any{
		"姓名":   attempt.Identity.Name,
		"手机号":  attempt.Identity.Phone,
		"得分":   attempt.Score,
		"正确率":  attempt.Accuracy, // plain number, no % suffix
		"错题数":  attempt.WrongCount(),
		"答题用时": formatTimeUsed(attempt.TimeUsed()),
		"答题时间": attempt.CompletedAt.Format("2006-01-02 15:04:05"),
		"查看答案": viewed,
	}}
}

func formatTimeUsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := int(d/time.Second) % 60
	return fmt.Sprintf("%d分%d秒", minutes, seconds)
}
