package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"supertrend-flip-bot/internal/core/model"
)

// monthDoc 月文档：日期键 -> 当日记录（按写入顺序）
type monthDoc map[string][]model.PositionEvent

// add 追加记录，超过上限时丢弃最早的记录
func (d monthDoc) add(day string, ev model.PositionEvent, max int) {
	bucket := append(d[day], ev)
	if len(bucket) > max {
		bucket = append([]model.PositionEvent(nil), bucket[len(bucket)-max:]...)
	}
	d[day] = bucket
}

// readMonth 读取月文档
// 文件不存在返回空文档
func readMonth(path string) (monthDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return monthDoc{}, nil
		}
		return nil, err
	}
	doc := monthDoc{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// writeMonth 以临时文件 + rename 的方式整体替换月文档
func writeMonth(path string, doc monthDoc) (err error) {
	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化月文档失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// loadMonth 加载月文档
// 文件损坏时保留原文件为 .corrupt 并从空文档恢复，之后由对账回填
func (l *Ledger) loadMonth(month string) monthDoc {
	path := l.jsonPath(month)
	doc, err := readMonth(path)
	if err == nil {
		return doc
	}

	corrupt := path + ".corrupt"
	if rerr := os.Rename(path, corrupt); rerr != nil {
		corrupt = ""
	}
	l.logger.Error("结构化存储无法读取，从空文档恢复",
		zap.String("path", path),
		zap.String("preserved_as", corrupt),
		zap.Error(err),
	)
	return monthDoc{}
}

// saveMonth 保存当前月文档
func (l *Ledger) saveMonth() error {
	return writeMonth(l.jsonPath(l.month), l.doc)
}
