package cgroup

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// Create itself requires a writable /sys/fs/cgroup and is only exercised on
// a real Linux host with root. These tests cover the arithmetic Create
// feeds into cpu.max / cpu.cfs_quota_us.

func TestCPUQuotaArithmetic(t *testing.T) {
	tests := []struct {
		name       string
		multiplier float64
		wantQuota  int64
	}{
		{"one full core", 1.0, 100000},
		{"half a core", 0.5, 50000},
		{"two cores", 2.0, 200000},
		{"tenth of a core", 0.1, 10000},
		{"rounds to nearest", 0.123456, 12346},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quota := int64(math.Round(tt.multiplier * cpuPeriodUsec))
			assert.Equal(t, tt.wantQuota, quota)
		})
	}
}

func TestMemoryLimitArithmetic(t *testing.T) {
	tests := []struct {
		name string
		mib  uint64
		want int64
	}{
		{"256 MiB", 256, 256 << 20},
		{"1 MiB", 1, 1 << 20},
		{"1024 MiB", 1024, 1024 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, int64(tt.mib)<<20)
		})
	}
}

func TestHandleAccessorsReflectConfiguration(t *testing.T) {
	quota := int64(50000)
	mem := int64(256 << 20)
	h := &Handle{cpu: &quota, memory: &mem, id: "picotin-deadbeef", log: logrus.NewEntry(logrus.New())}

	q, period, ok := h.CPUQuota()
	assert.True(t, ok)
	assert.Equal(t, quota, q)
	assert.Equal(t, int64(cpuPeriodUsec), period)

	m, ok := h.MemoryLimit()
	assert.True(t, ok)
	assert.Equal(t, mem, m)

	assert.Equal(t, "picotin-deadbeef", h.Name())
}

func TestHandleAccessorsReportUnset(t *testing.T) {
	h := &Handle{id: "picotin-cafebabe", log: logrus.NewEntry(logrus.New())}

	_, _, ok := h.CPUQuota()
	assert.False(t, ok)

	_, ok = h.MemoryLimit()
	assert.False(t, ok)
}

func TestDetectV2DoesNotPanicWithoutCgroupfs(t *testing.T) {
	assert.NotPanics(t, func() { detectV2() })
}
