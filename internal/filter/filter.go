// Package filter 按评分区间与评价人数量级筛选电影记录。
package filter

import (
	"math"

	"github.com/John-Robertt/DBPick/internal/domain"
)

// Interval 是评价人数的半开区间 [Min, Max)；Max<0 表示无上界。
type Interval struct {
	Min int
	Max int
}

func (iv Interval) Contains(n int) bool {
	if n < iv.Min {
		return false
	}
	return iv.Max < 0 || n < iv.Max
}

// BucketInterval 返回量级对应的区间；BucketAll 返回 ok=false（不筛选）。
func BucketInterval(b domain.ReviewBucket) (Interval, bool) {
	switch b {
	case domain.BucketHundreds:
		return Interval{Min: 100, Max: 1000}, true
	case domain.BucketThousands:
		return Interval{Min: 1000, Max: 10000}, true
	case domain.BucketTensOfThousands:
		return Interval{Min: 10000, Max: 100000}, true
	case domain.BucketHundredsOfThousands:
		return Interval{Min: 100000, Max: 1000000}, true
	case domain.BucketMillions:
		return Interval{Min: 1000000, Max: -1}, true
	default:
		return Interval{}, false
	}
}

// NormalizeRange 比较两个用户输入，返回真正的 (min, max)。
func NormalizeRange(a, b float64) (float64, float64) {
	return math.Min(a, b), math.Max(a, b)
}

// Normalize 返回 min<=max 的 FilterOptions 副本。
func Normalize(opt domain.FilterOptions) domain.FilterOptions {
	opt.MinRating, opt.MaxRating = NormalizeRange(opt.MinRating, opt.MaxRating)
	return opt
}

// Movies 是纯函数：返回满足条件的记录（保持输入顺序，不修改输入）。
// LinkType 不参与筛选。
func Movies(records []domain.MovieRecord, opt domain.FilterOptions) []domain.MovieRecord {
	lo, hi := NormalizeRange(opt.MinRating, opt.MaxRating)
	iv, byReviews := BucketInterval(opt.Bucket)

	out := make([]domain.MovieRecord, 0, len(records))
	for _, m := range records {
		if m.Rating < lo || m.Rating > hi {
			continue
		}
		if byReviews && !iv.Contains(m.ReviewCount) {
			continue
		}
		out = append(out, m)
	}
	return out
}
