package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type providerStat struct {
	requests int64
	records  int64
}

var (
	errorsFetch    int64
	errorsCache    int64
	warnsFetch     int64
	warnsCache     int64
	cacheHits      int64
	cacheMisses    int64
	blobWrites     int64
	s3Mirrors      int64
	recordsFetched int64
	providers      sync.Map // map[string]*providerStat
)

func recordWarn(component string) {
	if strings.Contains(component, "fetch") || strings.Contains(component, "provider") {
		atomic.AddInt64(&warnsFetch, 1)
	} else if strings.Contains(component, "cache") {
		atomic.AddInt64(&warnsCache, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "fetch") || strings.Contains(component, "provider") {
		atomic.AddInt64(&errorsFetch, 1)
	} else if strings.Contains(component, "cache") {
		atomic.AddInt64(&errorsCache, 1)
	}
}

func IncrementCacheHit() {
	atomic.AddInt64(&cacheHits, 1)
}

func IncrementCacheMiss() {
	atomic.AddInt64(&cacheMisses, 1)
}

func IncrementBlobWrite() {
	atomic.AddInt64(&blobWrites, 1)
}

func IncrementS3Mirror() {
	atomic.AddInt64(&s3Mirrors, 1)
}

// RecordProviderRequest tracks one outbound request and the number of bars
// it returned, keyed by provider name.
func RecordProviderRequest(name string, records int) {
	v, _ := providers.LoadOrStore(name, &providerStat{})
	ps := v.(*providerStat)
	atomic.AddInt64(&ps.requests, 1)
	atomic.AddInt64(&ps.records, int64(records))
	atomic.AddInt64(&recordsFetched, int64(records))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and fetch statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	providerData := map[string]map[string]int64{}
	providers.Range(func(k, v any) bool {
		name := k.(string)
		ps := v.(*providerStat)
		providerData[name] = map[string]int64{
			"requests": atomic.LoadInt64(&ps.requests),
			"records":  atomic.LoadInt64(&ps.records),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	memMB := int64(0)
	if memStats != nil {
		memMB = int64(memStats.Used) / 1024 / 1024
	}

	fields := Fields{
		"errors_fetch":    atomic.LoadInt64(&errorsFetch),
		"errors_cache":    atomic.LoadInt64(&errorsCache),
		"warns_fetch":     atomic.LoadInt64(&warnsFetch),
		"warns_cache":     atomic.LoadInt64(&warnsCache),
		"cache_hits":      atomic.LoadInt64(&cacheHits),
		"cache_misses":    atomic.LoadInt64(&cacheMisses),
		"blob_writes":     atomic.LoadInt64(&blobWrites),
		"s3_mirrors":      atomic.LoadInt64(&s3Mirrors),
		"records_fetched": atomic.LoadInt64(&recordsFetched),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       memMB,
		"providers":       providerData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memMB))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsFetch"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_fetch"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsCache"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_cache"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CacheHits"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["cache_hits"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("CacheMisses"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["cache_misses"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("BlobWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["blob_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("S3Mirrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["s3_mirrors"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("RecordsFetched"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["records_fetched"].(int64)))},
	)

	for name, stats := range providerData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("FetchRequests"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Provider"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["requests"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ProviderRecords"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Provider"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["records"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
