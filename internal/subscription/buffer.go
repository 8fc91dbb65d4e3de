package subscription

// ring：定长环形缓冲，满时覆盖最旧的元素
type ring[T any] struct {
	buf  []T
	head int
	n    int
}

func newRing[T any](size int) *ring[T] {
	return &ring[T]{buf: make([]T, size)}
}

// push：写入一个元素，缓冲已满时丢弃最旧的一个并返回 true
func (r *ring[T]) push(v T) bool {
	if r.n == len(r.buf) {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	return false
}

// drain：按写入顺序取出至多 max 个元素
func (r *ring[T]) drain(max int) []T {
	k := r.n
	if max > 0 && k > max {
		k = max
	}
	out := make([]T, k)
	var zero T
	for i := range out {
		out[i] = r.buf[r.head]
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
	}
	r.n -= k
	return out
}

func (r *ring[T]) len() int { return r.n }
