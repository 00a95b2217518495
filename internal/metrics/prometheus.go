package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seisvol_conversion_duration_seconds",
			Help:    "Cube conversion duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 1800, 7200},
		},
		[]string{"status"},
	)

	TracesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seisvol_traces_read_total",
			Help: "Total traces decoded from containers",
		},
	)

	ChunksWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seisvol_chunks_written_total",
			Help: "Total chunks written to structured volumes",
		},
	)

	// Cache observability is part of the store's contract: hits and misses
	// per tier (local LRU, remote redis).
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seisvol_chunk_cache_hits_total",
			Help: "Total chunk cache hits",
		},
		[]string{"tier"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seisvol_chunk_cache_misses_total",
			Help: "Total chunk cache misses",
		},
		[]string{"tier"},
	)

	CacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seisvol_chunk_cache_evictions_total",
			Help: "Total chunks evicted from the local cache",
		},
	)

	CropsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seisvol_crops_extracted_total",
			Help: "Total crops read from structured volumes",
		},
	)

	CropsAssembled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seisvol_crops_assembled_total",
			Help: "Total predicted crops absorbed by assemblers",
		},
	)

	CubesConverted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seisvol_cubes_converted_total",
			Help: "Total cubes processed by batch conversion",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(ConversionDuration)
	prometheus.MustRegister(TracesRead)
	prometheus.MustRegister(ChunksWritten)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheEvictions)
	prometheus.MustRegister(CropsExtracted)
	prometheus.MustRegister(CropsAssembled)
	prometheus.MustRegister(CubesConverted)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
