package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"supertrend-flip-bot/internal/core/model"
	"supertrend-flip-bot/internal/util/timeutil"
)

// csvHeader 行存储表头（列顺序固定）
var csvHeader = []string{
	"timestamp", "time", "operation", "symbol", "direction", "price",
	"amount", "position_status", "entry_price", "pnl_percent", "note",
}

// encodeRow 将记录编码为 CSV 行
func encodeRow(ev model.PositionEvent, loc *time.Location) []string {
	entry := ""
	if ev.EntryPrice != nil {
		entry = ev.EntryPrice.String()
	}
	pnl := ""
	if ev.PnLPercent != nil {
		pnl = ev.PnLPercent.StringFixed(2)
	}
	return []string{
		timeutil.UnixSeconds(ev.Timestamp),
		timeutil.Human(ev.Timestamp, loc),
		string(ev.Operation),
		ev.Symbol,
		string(ev.Direction),
		ev.Price.String(),
		ev.Size.String(),
		string(ev.PositionAfter),
		entry,
		pnl,
		ev.Note,
	}
}

// decodeRow 解析 CSV 行
// 行存储不保存 ID 与 K 线时间，解析结果中二者为空
func decodeRow(row []string) (model.PositionEvent, error) {
	if len(row) != len(csvHeader) {
		return model.PositionEvent{}, fmt.Errorf("列数 %d，期望 %d", len(row), len(csvHeader))
	}
	ts, err := timeutil.ParseUnixSeconds(row[0])
	if err != nil {
		return model.PositionEvent{}, err
	}
	op := model.Operation(row[2])
	if !op.Valid() {
		return model.PositionEvent{}, fmt.Errorf("未知操作类型 %q", row[2])
	}
	price, err := decimal.NewFromString(row[5])
	if err != nil {
		return model.PositionEvent{}, fmt.Errorf("price: %w", err)
	}
	size, err := decimal.NewFromString(row[6])
	if err != nil {
		return model.PositionEvent{}, fmt.Errorf("amount: %w", err)
	}
	ev := model.PositionEvent{
		Timestamp:     ts,
		Operation:     op,
		Symbol:        row[3],
		Direction:     model.Side(row[4]),
		Price:         price,
		Size:          size,
		PositionAfter: model.Side(row[7]),
		Note:          row[10],
	}
	if row[8] != "" {
		v, err := decimal.NewFromString(row[8])
		if err != nil {
			return model.PositionEvent{}, fmt.Errorf("entry_price: %w", err)
		}
		ev.EntryPrice = &v
	}
	if row[9] != "" {
		v, err := decimal.NewFromString(row[9])
		if err != nil {
			return model.PositionEvent{}, fmt.Errorf("pnl_percent: %w", err)
		}
		ev.PnLPercent = &v
	}
	return ev, nil
}

// appendCSV 追加一行，新文件先写表头
// 每次写入都打开、写入、刷新、fsync 并关闭文件
func appendCSV(path string, row []string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// readDay 读取某日 CSV 的全部记录（按文件顺序）
// 文件不存在返回空；无法解析的行跳过并计入 skipped
func readDay(path string) (events []model.PositionEvent, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return events, skipped, err
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == csvHeader[0] {
				continue
			}
		}
		ev, err := decodeRow(row)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

// listDays 列出目录下所有 CSV 日期键（升序）
func listDays(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "trades_*.csv"))
	if err != nil {
		return nil, err
	}
	days := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "trades_"), ".csv")
		if len(name) == len(timeutil.DayLayout) {
			days = append(days, name)
		}
	}
	sort.Strings(days)
	return days, nil
}
