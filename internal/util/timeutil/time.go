// Package timeutil 提供账本与日志使用的时间工具函数。
// 日期键（YYYYMMDD / YYYYMM）始终按墙钟在指定时区下计算。
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DayLayout 日分桶键格式
	DayLayout = "20060102"
	// MonthLayout 月分桶键格式
	MonthLayout = "200601"
	// HumanLayout 人类可读时间格式
	HumanLayout = "2006-01-02 15:04:05"
)

// DayKey 返回 t 在 loc 时区下的日期键，如 20240501
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(orLocal(loc)).Format(DayLayout)
}

// MonthKey 返回 t 在 loc 时区下的月份键，如 202405
func MonthKey(t time.Time, loc *time.Location) string {
	return t.In(orLocal(loc)).Format(MonthLayout)
}

// MonthOfDay 从日期键截取月份键
func MonthOfDay(day string) string {
	if len(day) < 6 {
		return day
	}
	return day[:6]
}

// Human 返回 t 在 loc 时区下的可读时间
func Human(t time.Time, loc *time.Location) string {
	return t.In(orLocal(loc)).Format(HumanLayout)
}

// UnixSeconds 将时间格式化为带三位毫秒的 Unix 秒，如 1714564800.123
func UnixSeconds(t time.Time) string {
	ms := t.UnixMilli()
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	return fmt.Sprintf("%s%d.%03d", sign, ms/1000, ms%1000)
}

// ParseUnixSeconds 解析 UnixSeconds 的输出（也接受不带小数部分的整数秒）
func ParseUnixSeconds(s string) (time.Time, error) {
	sec, frac, hasFrac := strings.Cut(strings.TrimSpace(s), ".")
	secs, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("无效的时间戳 %q: %w", s, err)
	}
	var ms int64
	if hasFrac {
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		ms, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("无效的时间戳 %q: %w", s, err)
		}
	}
	if strings.HasPrefix(sec, "-") {
		ms = -ms
	}
	return time.UnixMilli(secs*1000 + ms), nil
}

// MsToTime 将毫秒时间戳转换为 time.Time
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// DurationMs 将毫秒配置值转换为 time.Duration
func DurationMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
