package sample

// Downsample reduces src to at most maxPoints values by decimation.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	n := min(len(src), maxPoints)
	if cap(dst) >= n {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, n)
	}
	if len(src) <= maxPoints {
		return append(dst, src...)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := range maxPoints {
		dst = append(dst, src[int(float64(i)*step)])
	}
	return dst
}

// BlockAverage reduces src to at most maxPoints values, each the mean of a block of
// consecutive values. Spectra keep their narrow features better this way than with
// decimation.
func BlockAverage(dst, src []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(src) <= maxPoints {
		return Downsample(dst, src, len(src))
	}
	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float64, 0, maxPoints)
	}

	block := (len(src) + maxPoints - 1) / maxPoints
	for i := 0; i < len(src); i += block {
		end := min(i+block, len(src))
		var sum float64
		for _, v := range src[i:end] {
			sum += v
		}
		dst = append(dst, sum/float64(end-i))
	}
	return dst
}

// Average returns the mean value of samples stamped with the last timestamp.
func Average(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return Sample{
		Timestamp: samples[len(samples)-1].Timestamp,
		Value:     sum / float64(len(samples)),
	}
}

// Range returns the smallest and largest value of every series combined.
// ok is false when all series are empty.
func Range(series ...[]Sample) (lo, hi float64, ok bool) {
	for _, ss := range series {
		for _, s := range ss {
			if !ok {
				lo, hi, ok = s.Value, s.Value, true
				continue
			}
			lo = min(lo, s.Value)
			hi = max(hi, s.Value)
		}
	}
	return lo, hi, ok
}
