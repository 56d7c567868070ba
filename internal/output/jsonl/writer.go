// Package jsonl 输出状态快照与每日汇总（每行一个 JSON 对象）。
//
// 快照只用于展示，不属于账本。写入在调用方编码后投递到有界队列，
// 队列满时直接丢弃该快照，轮询驱动永远不会因为输出而阻塞。
// 后台 goroutine 在队列排空时刷新文件，便于 tail -f 观察。
package jsonl

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"go.uber.org/multierr"
)

// ErrClosed 写入器已关闭
var ErrClosed = errors.New("快照写入器已关闭")

// Writer 快照写入器
type Writer struct {
	path string

	// lines 已编码的快照行
	lines chan []byte
	// flushes Flush 请求，回复刷新结果
	flushes chan chan error
	// done 后台 goroutine 退出
	done chan struct{}

	// mu 保护 closed 与 lines 的关闭
	mu     sync.RWMutex
	closed bool
	// closeErr 后台 goroutine 的最终刷新/关闭结果
	closeErr error

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter 创建快照写入器，以追加方式打开 path
// 参数 queueSize: 待落盘快照的队列长度，<=0 时取 256
func NewWriter(path string, queueSize int) (*Writer, error) {
	if queueSize <= 0 {
		queueSize = 256
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建快照目录失败: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开快照文件失败: %w", err)
	}

	w := &Writer{
		path:    path,
		lines:   make(chan []byte, queueSize),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
	}
	go w.run(f)
	return w, nil
}

// Write 编码并投递一条快照
// 编码失败返回错误并计入丢弃；队列已满时静默丢弃。
func (w *Writer) Write(v any) error {
	b, err := sonic.Marshal(v)
	if err != nil {
		w.dropped.Add(1)
		return fmt.Errorf("编码快照失败: %w", err)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.lines <- append(b, '\n'):
	default:
		w.dropped.Add(1)
	}
	return nil
}

// Flush 等待已投递的快照全部写入文件
func (w *Writer) Flush() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	reply := make(chan error, 1)
	w.flushes <- reply
	return <-reply
}

// Close 写完队列中剩余的快照后关闭文件，可重复调用
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.closeErr
}

// Path 快照文件路径
func (w *Writer) Path() string {
	return w.path
}

// Written 已写入文件的快照数
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// Dropped 编码失败、队列满或写入失败而丢弃的快照数
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *Writer) run(f *os.File) {
	defer close(w.done)
	bw := bufio.NewWriter(f)

	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.closeErr = multierr.Append(bw.Flush(), f.Close())
				return
			}
			w.put(bw, line)
			if len(w.lines) == 0 {
				// 刷新失败的数据仍留在缓冲区，下次刷新重试
				_ = bw.Flush()
			}
		case reply := <-w.flushes:
			w.drain(bw)
			reply <- bw.Flush()
		}
	}
}

// drain 写入队列中已有的快照，不等待新投递
func (w *Writer) drain(bw *bufio.Writer) {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return
			}
			w.put(bw, line)
		default:
			return
		}
	}
}

func (w *Writer) put(bw *bufio.Writer, line []byte) {
	if _, err := bw.Write(line); err != nil {
		w.dropped.Add(1)
		return
	}
	w.written.Add(1)
}
