package morton

import (
	"math/rand"
	"testing"
)

func benchFilter(b *testing.B, load float64) (*Filter, []uint64) {
	b.Helper()
	f, err := New(1<<20, testConfig())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewSource(0xC0FFEE))
	n := uint64(float64(f.Capacity()) * load)
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = rng.Uint64()
	}
	status := make([]bool, len(keys))
	f.InsertMany(keys, status)
	return f, keys
}

func BenchmarkInsert(b *testing.B) {
	f, err := New(1<<22, testConfig())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	rng := rand.New(rand.NewSource(0xC0FFEE))
	keys := make([]uint64, 1<<20)
	for i := range keys {
		keys[i] = rng.Uint64()
	}
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.Insert(keys[i%len(keys)])
	}
}

func BenchmarkLikelyContains_Hit(b *testing.B) {
	f, keys := benchFilter(b, 0.80)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.LikelyContains(keys[i%len(keys)])
	}
}

func BenchmarkLikelyContains_Miss(b *testing.B) {
	f, _ := benchFilter(b, 0.80)
	rng := rand.New(rand.NewSource(1))
	probes := make([]uint64, 1<<16)
	for i := range probes {
		probes[i] = rng.Uint64()
	}
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.LikelyContains(probes[i%len(probes)])
	}
}

func BenchmarkLikelyContainsMany(b *testing.B) {
	f, keys := benchFilter(b, 0.80)
	status := make([]bool, len(keys))
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f.LikelyContainsMany(keys, status)
	}
	b.SetBytes(int64(len(keys)) * 8)
}

func BenchmarkDelete(b *testing.B) {
	f, keys := benchFilter(b, 0.80)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		k := keys[i%len(keys)]
		if f.Delete(k) {
			f.Insert(k)
		}
	}
}
