// Package repository 遥测存储：按风机分区、逐条追加，每次追加是原子的。
package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"smartgrid-monitor/internal/models"

	"go.uber.org/zap"
)

const (
	partitionPrefix = "turbine_"
	partitionSuffix = ".txt"
)

// PartitionPath 风机分区文件路径 <dir>/turbine_{n}.txt
func PartitionPath(dir string, turbine int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d%s", partitionPrefix, turbine, partitionSuffix))
}

// FileStore 每台风机一个 JSONL 文件
//
// 文件以 O_APPEND 打开，每条记录（含换行）一次 write 写入，单行不会与其它写入交错。
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	files map[int]*os.File
}

// NewFileStore 创建文件存储，目录不存在时创建
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger,
		files:  make(map[int]*os.File),
	}, nil
}

// Backend 存储后端名
func (s *FileStore) Backend() string {
	return "file"
}

// Dir 数据目录
func (s *FileStore) Dir() string {
	return s.dir
}

// Append 追加一条遥测到对应风机的分区
func (s *FileStore) Append(_ context.Context, ev *models.TelemetryEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.partition(ev.TurbineNumber)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append to %s: %w", f.Name(), err)
	}
	return nil
}

func (s *FileStore) partition(turbine int) (*os.File, error) {
	if f, ok := s.files[turbine]; ok {
		return f, nil
	}
	path := PartitionPath(s.dir, turbine)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open partition %s: %w", path, err)
	}
	s.files[turbine] = f
	return f, nil
}

// Close 关闭所有分区文件
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for n, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close partition %d: %w", n, err)
		}
		delete(s.files, n)
	}
	return firstErr
}

// ListPartitions 列出目录中的风机分区编号（升序）
func ListPartitions(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", dir, err)
	}

	var numbers []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, partitionSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionSuffix))
		if err != nil || n < 1 {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// ReadPartition 读取一台风机的全部记录；无法解析的行会被跳过并返回跳过的行数
func ReadPartition(dir string, turbine int) ([]models.TelemetryEvent, int, error) {
	path := PartitionPath(dir, turbine)
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open partition %s: %w", path, err)
	}
	defer f.Close()

	var (
		events  []models.TelemetryEvent
		skipped int
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		ev, err := models.ParseTelemetryEvent(line)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, *ev)
	}
	if err := scanner.Err(); err != nil {
		return events, skipped, fmt.Errorf("failed to read partition %s: %w", path, err)
	}
	return events, skipped, nil
}
