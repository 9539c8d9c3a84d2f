// Package report 对已持久化的风机分区做只读汇总：逐台输出记录，或打包为 zip。
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"smartgrid-monitor/internal/models"
	"smartgrid-monitor/internal/repository"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

// ArchiveName 默认的打包文件名
const ArchiveName = "metrics.zip"

// Summary 单台风机的汇总
type Summary struct {
	TurbineNumber int
	Records       int
	Broken        int
	Episodes      int // ok→broken 边沿数（首条即为 broken 也计一次）
	Skipped       int
	First, Last   time.Time
}

// Reporter 分区目录的只读视图
type Reporter struct {
	dir    string
	logger *zap.Logger
}

// New 创建报表
func New(dir string, logger *zap.Logger) *Reporter {
	return &Reporter{dir: dir, logger: logger}
}

// Turbines 目录中有数据的风机编号
func (r *Reporter) Turbines() ([]int, error) {
	return repository.ListPartitions(r.dir)
}

// Summarize 汇总一台风机
func (r *Reporter) Summarize(turbine int) (Summary, []models.TelemetryEvent, error) {
	events, skipped, err := repository.ReadPartition(r.dir, turbine)
	if err != nil {
		return Summary{}, nil, err
	}
	if skipped > 0 {
		r.logger.Warn("Skipped malformed records", zap.Int("turbine_number", turbine), zap.Int("skipped", skipped))
	}

	s := Summary{TurbineNumber: turbine, Records: len(events), Skipped: skipped}
	var prev models.Status
	for i := range events {
		ev := &events[i]
		if ev.Status == models.StatusBroken {
			s.Broken++
			if prev != models.StatusBroken {
				s.Episodes++
			}
		}
		prev = ev.Status
	}
	if len(events) > 0 {
		s.First = events[0].Time()
		s.Last = events[len(events)-1].Time()
	}
	return s, events, nil
}

// Print 输出所有风机的记录；verbose 为 false 时只输出汇总
func (r *Reporter) Print(w io.Writer, verbose bool) error {
	turbines, err := r.Turbines()
	if err != nil {
		return err
	}
	if len(turbines) == 0 {
		_, err := fmt.Fprintf(w, "no turbine partitions in %s\n", r.dir)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TURBINE\tRECORDS\tBROKEN\tEPISODES\tFIRST\tLAST")
	var details [][]models.TelemetryEvent
	for _, n := range turbines {
		s, events, err := r.Summarize(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\n",
			s.TurbineNumber, s.Records, s.Broken, s.Episodes, formatTime(s.First), formatTime(s.Last))
		details = append(details, events)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !verbose {
		return nil
	}

	for i, events := range details {
		fmt.Fprintf(w, "\nturbine %d\n", turbines[i])
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tSTATUS\tWIND_SPEED\tPOWER_KWH")
		for _, ev := range events {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\n", formatTime(ev.Time()), ev.Status, ev.WindSpeed, ev.PowerOutputInKWh)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Archive 把所有分区文件打包写入 w，返回打包的分区数
func (r *Reporter) Archive(w io.Writer) (int, error) {
	turbines, err := r.Turbines()
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	for _, n := range turbines {
		if err := addFile(zw, repository.PartitionPath(r.dir, n)); err != nil {
			_ = zw.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish archive: %w", err)
	}

	r.logger.Info("Archived turbine partitions", zap.Int("partitions", len(turbines)))
	return len(turbines), nil
}

// ArchiveFile 打包到文件 path
func (r *Reporter) ArchiveFile(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive %s: %w", path, err)
	}
	n, err := r.Archive(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close archive %s: %w", path, cerr)
	}
	return n, err
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open partition %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat partition %s: %w", path, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", header.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to compress %s: %w", header.Name, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
