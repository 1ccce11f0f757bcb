package fingerprint

import "testing"

func BenchmarkGenerator_Fingerprint(b *testing.B) {
	gen := NewDefault()
	req := water()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.Fingerprint(req)
	}
}
