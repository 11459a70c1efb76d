// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package mcpserver

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/config"
)

const mib = 1024 * 1024

// ResourceUsageData is the report of the get_cache_stats tool.
type ResourceUsageData struct {
	Timestamp      string         `json:"timestamp"`
	ResponseCache  map[string]any `json:"response_cache,omitempty"`
	MemoryUsage    map[string]any `json:"memory_usage"`
	GCStats        map[string]any `json:"gc_stats"`
	SystemInfo     map[string]any `json:"system_info"`
	DetailedMemory map[string]any `json:"detailed_memory,omitempty"`
}

// CollectResourceUsage gathers process statistics and, when rt has one, the
// metrics of its revocation response cache.
//
// Parameters:
//   - rt: Runtime whose cache is reported; may be nil
//   - detailed: Include the allocator breakdown
//
// Returns:
//   - The collected data, timestamped in UTC
func CollectResourceUsage(rt *config.Runtime, detailed bool) *ResourceUsageData {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	data := &ResourceUsageData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MemoryUsage: map[string]any{
			"heap_alloc_mb":   float64(mem.HeapAlloc) / mib,
			"heap_sys_mb":     float64(mem.HeapSys) / mib,
			"heap_inuse_mb":   float64(mem.HeapInuse) / mib,
			"heap_objects":    mem.HeapObjects,
			"stack_inuse_mb":  float64(mem.StackInuse) / mib,
			"gc_cpu_fraction": mem.GCCPUFraction,
		},
		GCStats: map[string]any{
			"num_gc":        mem.NumGC,
			"num_forced_gc": mem.NumForcedGC,
			"enable_gc":     mem.EnableGC,
		},
		SystemInfo: map[string]any{
			"go_version":    runtime.Version(),
			"go_os":         runtime.GOOS,
			"go_arch":       runtime.GOARCH,
			"num_cpu":       runtime.NumCPU(),
			"num_goroutine": runtime.NumGoroutine(),
		},
	}

	if rt != nil && rt.Cache != nil {
		m := rt.Cache.Metrics()
		cfg := rt.Cache.Config()
		data.ResponseCache = map[string]any{
			"size":             m.Size,
			"max_size":         int64(cfg.MaxSize),
			"total_memory_mb":  float64(m.TotalMemory) / mib,
			"hits":             m.Hits,
			"misses":           m.Misses,
			"evictions":        m.Evictions,
			"cleanups":         m.Cleanups,
			"hit_rate_percent": calculateHitRate(m.Hits, m.Misses),
			"cleanup_interval": cfg.CleanupInterval.String(),
			"max_age":          cfg.MaxAge.String(),
		}
	}

	if detailed {
		data.DetailedMemory = map[string]any{
			"alloc_mb":          float64(mem.Alloc) / mib,
			"total_alloc_mb":    float64(mem.TotalAlloc) / mib,
			"sys_mb":            float64(mem.Sys) / mib,
			"mallocs":           mem.Mallocs,
			"frees":             mem.Frees,
			"gc_pause_total_ns": mem.PauseTotalNs,
			"next_gc_mb":        float64(mem.NextGC) / mib,
		}
	}

	return data
}

// FormatResourceUsageAsJSON formats data as indented JSON.
func FormatResourceUsageAsJSON(data *ResourceUsageData) (string, error) {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal resource usage: %w", err)
	}
	return string(out), nil
}

// FormatResourceUsageAsMarkdown formats data as markdown sections, one
// table per section.
func FormatResourceUsageAsMarkdown(data *ResourceUsageData) string {
	var buf strings.Builder

	buf.WriteString("# Resource Usage Report\n\n")
	if t, err := time.Parse(time.RFC3339, data.Timestamp); err == nil {
		fmt.Fprintf(&buf, "**Generated:** %s\n\n", t.Format("January 2, 2006 at 3:04 PM MST"))
	} else {
		fmt.Fprintf(&buf, "**Generated:** %s\n\n", data.Timestamp)
	}

	if data.ResponseCache != nil {
		section(&buf, "Revocation Response Cache", data.ResponseCache,
			"Cache Size", "size",
			"Max Size", "max_size",
			"Total Memory", "total_memory_mb",
			"Cache Hits", "hits",
			"Cache Misses", "misses",
			"Evictions", "evictions",
			"Cleanups", "cleanups",
			"Hit Rate", "hit_rate_percent",
			"Cleanup Interval", "cleanup_interval",
			"Max Age", "max_age",
		)
	} else {
		buf.WriteString("## Revocation Response Cache\n\nresponse cache disabled\n\n")
	}

	section(&buf, "System Information", data.SystemInfo,
		"Go Version", "go_version",
		"Operating System", "go_os",
		"Architecture", "go_arch",
		"CPU Count", "num_cpu",
		"Goroutines", "num_goroutine",
	)
	section(&buf, "Memory Usage", data.MemoryUsage,
		"Heap Allocated", "heap_alloc_mb",
		"Heap System", "heap_sys_mb",
		"Heap In Use", "heap_inuse_mb",
		"Heap Objects", "heap_objects",
		"Stack In Use", "stack_inuse_mb",
		"GC CPU Fraction", "gc_cpu_fraction",
	)
	section(&buf, "Garbage Collection", data.GCStats,
		"GC Cycles", "num_gc",
		"Forced GC", "num_forced_gc",
		"GC Enabled", "enable_gc",
	)
	if data.DetailedMemory != nil {
		section(&buf, "Detailed Memory Statistics", data.DetailedMemory,
			"Current Alloc", "alloc_mb",
			"Total Alloc", "total_alloc_mb",
			"System Memory", "sys_mb",
			"Mallocs", "mallocs",
			"Frees", "frees",
			"GC Pause Total", "gc_pause_total_ns",
			"Next GC", "next_gc_mb",
		)
	}

	return buf.String()
}

// section writes a titled markdown table. pairs alternates labels and keys
// of data; keys missing from data are skipped.
func section(buf *strings.Builder, title string, data map[string]any, pairs ...string) {
	fmt.Fprintf(buf, "## %s\n\n", title)

	var rows [][]string
	for i := 0; i+1 < len(pairs); i += 2 {
		if value, ok := data[pairs[i+1]]; ok {
			rows = append(rows, []string{pairs[i], formatValueForMarkdown(value, pairs[i+1])})
		}
	}

	table := tablewriter.NewTable(buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"📊 METRIC", "📈 VALUE"})
	table.Bulk(rows)
	table.Render()
	buf.WriteString("\n")
}

func formatValueForMarkdown(value any, key string) string {
	switch v := value.(type) {
	case int64:
		if key == "size" || key == "max_size" {
			return fmt.Sprintf("%d entries", v)
		}
		return fmt.Sprintf("%d", v)
	case uint64:
		if key == "gc_pause_total_ns" {
			return fmt.Sprintf("%.2f ms", float64(v)/1e6)
		}
		return fmt.Sprintf("%d", v)
	case float64:
		switch {
		case key == "gc_cpu_fraction" || key == "hit_rate_percent":
			return fmt.Sprintf("%.2f%%", v)
		case strings.HasSuffix(key, "_mb"):
			return fmt.Sprintf("%.2f MB", v)
		}
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%v", value)
}

// calculateHitRate returns hits as a percentage of all lookups.
func calculateHitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
