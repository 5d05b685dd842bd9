package admin

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vincent19951222/quiz-website/internal/domain"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "答题记录"

var exportColumns = []struct {
	header string
	width  float64
}{
	{"姓名", 10},
	{"手机号", 15},
	{"得分", 8},
	{"正确率", 10},
	{"答题时间", 20},
	{"查看答案", 12},
}

// Export renders the records into a spreadsheet with the fixed localized
// headers and column widths. The filename carries the current date.
func Export(attempts []domain.Attempt, now time.Time) (filename string, data []byte, err error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return "", nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", nil, err
	}

	for i, col := range exportColumns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return "", nil, err
		}
		cell := fmt.Sprintf("%s1", name)
		if err := f.SetCellValue(exportSheet, cell, col.header); err != nil {
			return "", nil, err
		}
		if err := f.SetColWidth(exportSheet, name, name, col.width); err != nil {
			return "", nil, err
		}
	}

	for row, attempt := range attempts {
		viewed := "否"
		if attempt.AnswersViewed {
			viewed = "是"
		}
		values := []any{
			attempt.Identity.Name,
			attempt.Identity.Phone,
			attempt.Score,
			fmt.Sprintf("%d%%", attempt.Accuracy),
			attempt.CompletedAt.Format("2006-01-02 15:04:05"),
			viewed,
		}
		for col, value := range values {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return "", nil, err
			}
			cell := fmt.Sprintf("%s%d", name, row+2)
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				return "", nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return "", nil, err
	}
	filename = fmt.Sprintf("答题记录_%s.xlsx", now.Format("2006-01-02"))
	return filename, buf.Bytes(), nil
}
