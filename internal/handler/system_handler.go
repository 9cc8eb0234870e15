package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/middleware"
	"github.com/quizmasterhq/quizmaster/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const metricsInterval = 7 * time.Second

// SystemHandler streams OS and Go runtime metrics via SSE, teacher only.
type SystemHandler struct {
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger

	// CPU delta state
	prevIdle  uint64
	prevTotal uint64
}

func NewSystemHandler(rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
	// Seed initial CPU reading so the first tick gets a real delta
	h.prevIdle, h.prevTotal, _ = readCPUStat()
	return h
}

type systemMetrics struct {
	Timestamp int64   `json:"timestamp"`
	UptimeSec float64 `json:"uptime_sec"`

	// OS
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	LoadAvg1      float64 `json:"load_avg_1"`

	// Go application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`

	// Answer queue backlog
	QueueAnswers int64 `json:"queue_answers"`
}

// MetricsSSE godoc
// GET /api/v1/teacher/system/metrics
func (h *SystemHandler) MetricsSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	m := h.collect()
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect() systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		UptimeSec: time.Since(h.startTime).Seconds(),
		GoVersion: runtime.Version(),
	}

	idle, total, err := readCPUStat()
	if err == nil && total > h.prevTotal {
		idleDelta := float64(idle - h.prevIdle)
		totalDelta := float64(total - h.prevTotal)
		m.CPUPercent = (1 - idleDelta/totalDelta) * 100
		h.prevIdle = idle
		h.prevTotal = total
	}

	memTotal, memAvail, err := readMemInfo()
	if err == nil && memTotal > 0 {
		m.MemTotalBytes = memTotal
		m.MemUsedBytes = memTotal - memAvail
	}

	m.LoadAvg1, _ = readLoadAvg()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.NumGC = ms.NumGC

	m.QueueAnswers, _ = h.rdb.LLen(context.Background(), config.WorkerKey.PersistAnswersQueue).Result()

	return m
}

// readCPUStat parses /proc/stat for aggregate CPU times.
func readCPUStat() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line := strings.SplitN(string(data), "\n", 2)[0]
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}

	for i := 1; i < len(fields); i++ {
		val, _ := strconv.ParseUint(fields[i], 10, 64)
		total += val
		if i == 4 {
			idle = val
		}
	}
	return idle, total, nil
}

// readMemInfo parses /proc/meminfo for MemTotal and MemAvailable.
func readMemInfo() (total, available uint64, err error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			total = parseMemInfoValue(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			available = parseMemInfoValue(line)
		}
		if total > 0 && available > 0 {
			break
		}
	}
	return total, available, nil
}

func parseMemInfoValue(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	val, _ := strconv.ParseUint(fields[1], 10, 64)
	return val * 1024
}

// readLoadAvg parses the 1-minute value from /proc/loadavg.
func readLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, fmt.Errorf("unexpected /proc/loadavg format")
	}
	return strconv.ParseFloat(fields[0], 64)
}
