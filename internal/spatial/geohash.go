package spatial

// 文档注释：轻量 geohash 编码（base32），用于内存索引的网格分桶
// 约束：精度 4 时单元约 0.35°(经) x 0.18°(纬)
var base32 = []byte("0123456789bcdefghjkmnpqrstuvwxyz")

const (
	cellPrecision = 4
	cellLonDeg    = 360.0 / 1024
	cellLatDeg    = 180.0 / 1024
)

func encodeGeohash(lat, lon float64, precision int) string {
	latInt := [2]float64{-90, 90}
	lonInt := [2]float64{-180, 180}
	bits := [5]int{16, 8, 4, 2, 1}
	bit, ch := 0, 0
	even := true
	out := make([]byte, 0, precision)
	for len(out) < precision {
		if even {
			mid := (lonInt[0] + lonInt[1]) / 2
			if lon >= mid {
				ch |= bits[bit]
				lonInt[0] = mid
			} else {
				lonInt[1] = mid
			}
		} else {
			mid := (latInt[0] + latInt[1]) / 2
			if lat >= mid {
				ch |= bits[bit]
				latInt[0] = mid
			} else {
				latInt[1] = mid
			}
		}
		even = !even
		if bit < 4 {
			bit++
		} else {
			out = append(out, base32[ch])
			bit, ch = 0, 0
		}
	}
	return string(out)
}

// coveringCells：枚举覆盖矩形的网格；数量超过 maxCells 时返回 nil，调用方改为全量扫描
func coveringCells(box BoundingBox, maxCells int) []string {
	rows := int((box.MaxLat-box.MinLat)/cellLatDeg) + 2
	cols := int((box.MaxLon-box.MinLon)/cellLonDeg) + 2
	if rows*cols > maxCells {
		return nil
	}
	seen := make(map[string]bool, rows*cols)
	var out []string
	for i := 0; i < rows; i++ {
		lat := min(box.MinLat+float64(i)*cellLatDeg, box.MaxLat)
		for j := 0; j < cols; j++ {
			lon := min(box.MinLon+float64(j)*cellLonDeg, box.MaxLon)
			h := encodeGeohash(lat, lon, cellPrecision)
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	return out
}
