// 阶段 D: 对比堆内存读取 vs mmap 映射的查询性能（同一库文件，多轮取平均）
package main

import (
	"fmt"

	"github.com/ic-timon/ipgeo/bench/gen"
	"github.com/ic-timon/ipgeo/bench/metrics"
)

func runStageD(opts stageOpts) {
	const concurrency = 16
	const runs = 5 // 多轮取平均

	networks := gen.RandomNetworks(opts.networks, 4, 12345)
	addrs := gen.RandomAddrs(opts.lookups, networks, 12346)
	buf, err := gen.BuildDB(6, 28, networks)
	if err != nil {
		panic(err)
	}

	var rows []metrics.Row
	for _, useMmap := range []bool{false, true} {
		mode := "堆内存"
		if useMmap {
			mode = "mmap"
		}
		fmt.Printf("阶段 D: %s模式\n", mode)
		r, closeDB := openDB(buf, useMmap)

		avg := metrics.Row{
			Stage:      "d",
			RecordSize: 28,
			IPVersion:  6,
			Networks:   len(networks),
			FileBytes:  len(buf),
			Mmap:       useMmap,
		}
		for i := 0; i < runs; i++ {
			var row metrics.Row
			measure(&row, r, addrs, concurrency)
			avg.QPS += row.QPS / runs
			avg.LookupP50Us += row.LookupP50Us / runs
			avg.LookupP95Us += row.LookupP95Us / runs
			avg.LookupP99Us += row.LookupP99Us / runs
			avg.AllocsPerOp += row.AllocsPerOp / runs
			avg.BytesPerOp += row.BytesPerOp / runs
			avg.Concurrency = row.Concurrency
			avg.NodeCount = row.NodeCount
			avg.NumGoroutine = row.NumGoroutine
		}
		closeDB()

		rows = append(rows, avg)
		fmt.Printf("  %s (avg of %d runs)\n", mode, runs)
		printRow(avg)
	}

	if rows[0].QPS > 0 {
		fmt.Printf("mmap/堆内存 QPS 比: %.2f\n", rows[1].QPS/rows[0].QPS)
	}
	writeReports(rows, "bench_report_stage_d_")
}
