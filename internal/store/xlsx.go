package store

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

var xlsxHeader = []string{
	"id_str", "type", "publish_ts", "publish_time", "author_name", "txt",
	"bvid", "title", "cover", "description", "article_title", "opus_title",
	"opus_summary_text", "like_count", "comment_count", "repost_count",
	"view_count", "media_count", "media_locals", "live_media_locals",
	"fetch_time",
}

// ExportHostXLSX renders every archived item of one owner into a workbook and
// returns the serialized bytes.
func ExportHostXLSX(hostMID string) ([]byte, error) {
	const pageSize = 500
	f := excelize.NewFile()
	sheet := "Dynamics"
	f.SetSheetName("Sheet1", sheet)

	if err := f.SetSheetRow(sheet, "A1", &xlsxHeader); err != nil {
		return nil, err
	}
	applyXLSXHeaderStyle(f, sheet, len(xlsxHeader))

	rowIdx := 2
	for offset := 0; ; offset += pageSize {
		_, items, err := ListItems(hostMID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			row := []any{
				it.IDStr, it.Type, it.PublishTS, formatTS(it.PublishTS),
				it.AuthorName, it.Text, it.BVID, it.Title, it.Cover, it.Desc,
				it.ArticleTitle, it.OpusTitle, it.OpusSummary,
				it.LikeCount, it.CommentCount, it.RepostCount, it.ViewCount,
				it.MediaCount, it.MediaLocals, it.LiveMediaLocals, it.FetchTime,
			}
			cell, _ := excelize.CoordinatesToCellName(1, rowIdx)
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return nil, err
			}
			rowIdx++
		}
		if len(items) < pageSize {
			break
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func applyXLSXHeaderStyle(f *excelize.File, sheet string, cols int) {
	styleID, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F4E79"}, Pattern: 1},
	})
	if err != nil {
		return
	}
	start, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(cols, 1)
	_ = f.SetCellStyle(sheet, start, end, styleID)
}

func formatTS(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

// ExportFilename names the downloaded workbook for one owner.
func ExportFilename(hostMID string) string {
	return fmt.Sprintf("dynamic_%s_%s.xlsx", hostMID, time.Now().Format("20060102_150405"))
}
