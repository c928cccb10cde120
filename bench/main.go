// 压测入口：-stage a|b|c|d
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ic-timon/ipgeo/bench/metrics"
	"github.com/ic-timon/ipgeo/mmdb"
	"github.com/ic-timon/ipgeo/mmdb/mmdbtest"
)

type stageOpts struct {
	networks int
	lookups  int
	mmap     bool
}

func main() {
	stage := flag.String("stage", "", "压测阶段: a(记录宽度) | b(容量扩展) | c(高并发) | d(内存vs mmap)")
	networks := flag.Int("networks", 50_000, "库中网络数")
	lookups := flag.Int("lookups", 100_000, "每轮查询次数")
	useMmap := flag.Bool("mmap", true, "以 mmap 方式打开库（stage a/b/c 生效）")
	flag.Parse()
	opts := stageOpts{networks: *networks, lookups: *lookups, mmap: *useMmap}
	switch *stage {
	case "a":
		runStageA(opts)
	case "b":
		runStageB(opts)
	case "c":
		runStageC(opts)
	case "d":
		runStageD(opts)
	default:
		log.Fatalf("请指定 -stage a|b|c|d")
	}
	fmt.Println("压测完成")
}

// openDB 将库写入临时文件并打开，返回关闭函数
func openDB(buf []byte, useMmap bool) (*mmdb.Reader, func()) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("ipgeo-bench-%d.mmdb", time.Now().UnixNano()))
	if err := mmdbtest.WriteFile(path, buf); err != nil {
		panic(err)
	}
	cfg := mmdb.DefaultConfig()
	cfg.UseMmap = useMmap
	r, err := mmdb.Open(path, cfg)
	if err != nil {
		panic(err)
	}
	return r, func() {
		_ = r.Close()
		_ = os.Remove(path)
	}
}

// runLookups 以 concurrency 个 goroutine 均分 addrs 执行查询，返回每次耗时与总耗时
func runLookups(r *mmdb.Reader, addrs []string, concurrency int) ([]time.Duration, time.Duration) {
	durations := make([]time.Duration, len(addrs))
	perWorker := (len(addrs) + concurrency - 1) / concurrency
	var wg sync.WaitGroup
	start := time.Now()
	for c := 0; c < concurrency; c++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			base := worker * perWorker
			for i := base; i < base+perWorker && i < len(addrs); i++ {
				t0 := time.Now()
				if _, _, err := r.Lookup(addrs[i]); err != nil {
					panic(err)
				}
				durations[i] = time.Since(t0)
			}
		}(c)
	}
	wg.Wait()
	return durations, time.Since(start)
}

// measure 执行一轮查询并填充 Row 的延迟、吞吐与分配字段
func measure(row *metrics.Row, r *mmdb.Reader, addrs []string, concurrency int) {
	metrics.GC()
	before := metrics.Take()
	durations, elapsed := runLookups(r, addrs, concurrency)
	after := metrics.Take()

	stats := metrics.LatencyStatsFromDurations(durations)
	row.Concurrency = concurrency
	row.QPS = float64(len(addrs)) / elapsed.Seconds()
	row.LookupP50Us = stats.P50Us
	row.LookupP95Us = stats.P95Us
	row.LookupP99Us = stats.P99Us
	row.AllocsPerOp, row.BytesPerOp = metrics.AllocsPerOp(before, after, len(addrs))
	row.NumGoroutine = after.NumGoroutine
	row.NodeCount = int(r.Metadata().NodeCount)
}

func printRow(row metrics.Row) {
	fmt.Printf("  QPS=%.0f P50=%.2fus P95=%.2fus P99=%.2fus allocs/op=%.1f B/op=%.0f nodes=%d\n",
		row.QPS, row.LookupP50Us, row.LookupP95Us, row.LookupP99Us, row.AllocsPerOp, row.BytesPerOp, row.NodeCount)
}

func writeReports(rows []metrics.Row, prefix string) {
	path, err := metrics.WriteReports(rows, prefix)
	if err != nil {
		panic(err)
	}
	fmt.Printf("报告已写入 %s\n", path)
}
