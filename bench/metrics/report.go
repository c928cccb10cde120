package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// LatencyStats 延迟统计（微秒）
type LatencyStats struct {
	P50Us float64
	P95Us float64
	P99Us float64
	AvgUs float64
	N     int
}

// Row 单个压测配置的结果
type Row struct {
	Stage        string
	RecordSize   int
	IPVersion    int
	Networks     int
	NodeCount    int
	FileBytes    int
	Mmap         bool
	Concurrency  int
	QPS          float64
	LookupP50Us  float64
	LookupP95Us  float64
	LookupP99Us  float64
	AllocsPerOp  float64
	BytesPerOp   float64
	NumGoroutine int
}

// Percentile 计算切片中第 p 百分位（0-100），输入需已排序
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	return sorted[int(float64(len(sorted)-1)*p/100)]
}

// LatencyStatsFromDurations 从耗时列表计算 P50/P95/P99
func LatencyStatsFromDurations(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}
	us := make([]float64, len(durations))
	var sum float64
	for i, d := range durations {
		us[i] = float64(d.Nanoseconds()) / 1e3
		sum += us[i]
	}
	sort.Float64s(us)
	return LatencyStats{
		P50Us: Percentile(us, 50),
		P95Us: Percentile(us, 95),
		P99Us: Percentile(us, 99),
		AvgUs: sum / float64(len(us)),
		N:     len(us),
	}
}

var csvHeader = []string{
	"Stage", "RecordSize", "IPVersion", "Networks", "NodeCount", "FileBytes", "Mmap", "Concurrency",
	"QPS", "LookupP50Us", "LookupP95Us", "LookupP99Us", "AllocsPerOp", "BytesPerOp", "NumGoroutine",
}

// WriteCSV 写入 CSV 报告
func WriteCSV(rows []Row, path string) error {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write(csvHeader)
	for _, r := range rows {
		w.Write([]string{
			r.Stage,
			fmt.Sprintf("%d", r.RecordSize),
			fmt.Sprintf("%d", r.IPVersion),
			fmt.Sprintf("%d", r.Networks),
			fmt.Sprintf("%d", r.NodeCount),
			fmt.Sprintf("%d", r.FileBytes),
			fmt.Sprintf("%t", r.Mmap),
			fmt.Sprintf("%d", r.Concurrency),
			fmt.Sprintf("%.0f", r.QPS),
			fmt.Sprintf("%.2f", r.LookupP50Us),
			fmt.Sprintf("%.2f", r.LookupP95Us),
			fmt.Sprintf("%.2f", r.LookupP99Us),
			fmt.Sprintf("%.1f", r.AllocsPerOp),
			fmt.Sprintf("%.0f", r.BytesPerOp),
			fmt.Sprintf("%d", r.NumGoroutine),
		})
	}
	w.Flush()
	return w.Error()
}

// ReportDir 报告输出目录
const ReportDir = "report"

// ReportPath 生成 report/ 目录下带日期的报告路径
func ReportPath(prefix, ext string) string {
	return filepath.Join(ReportDir, prefix+time.Now().Format("20060102")+ext)
}

// WriteJSON 写入 JSON 报告
func WriteJSON(v interface{}, path string) error {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0644)
}

// WriteReports 同时写入 CSV 与 JSON 报告，返回 CSV 路径
func WriteReports(rows []Row, prefix string) (string, error) {
	csvPath := ReportPath(prefix, ".csv")
	if err := WriteCSV(rows, csvPath); err != nil {
		return "", err
	}
	if err := WriteJSON(rows, ReportPath(prefix, ".json")); err != nil {
		return "", err
	}
	return csvPath, nil
}
