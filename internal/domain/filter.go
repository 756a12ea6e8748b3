package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// LinkType 决定打开电影页还是剧照页；它不参与筛选，只影响下游取哪个字段。
type LinkType string

const (
	LinkMovie  LinkType = "movie"
	LinkPhotos LinkType = "photos"
)

// ParseLinkType 接受 movie/photos（以及 primary/photo 这类别名）。
func ParseLinkType(s string) (LinkType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "movie", "primary":
		return LinkMovie, nil
	case "photos", "photo":
		return LinkPhotos, nil
	default:
		return "", fmt.Errorf("link_type 只能是 movie 或 photos，实际是 %q", s)
	}
}

// Label 是面向用户的页面名称。
func (t LinkType) Label() string {
	if t == LinkPhotos {
		return "剧照页面"
	}
	return "电影初始页面"
}

// ReviewBucket 是评价人数的量级分档；数值与弹窗滑块的 level 一致。
type ReviewBucket int

const (
	BucketAll ReviewBucket = iota
	BucketHundreds
	BucketThousands
	BucketTensOfThousands
	BucketHundredsOfThousands
	BucketMillions
)

var bucketNames = []string{
	"all",
	"hundreds",
	"thousands",
	"tens_of_thousands",
	"hundreds_of_thousands",
	"millions",
}

func (b ReviewBucket) String() string {
	if b < 0 || int(b) >= len(bucketNames) {
		return "unknown"
	}
	return bucketNames[b]
}

// ParseReviewBucket 接受名称（all/hundreds/...，'-' 与 '_' 等价）或滑块 level（0-5）。
func ParseReviewBucket(s string) (ReviewBucket, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return BucketAll, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n >= len(bucketNames) {
			return 0, fmt.Errorf("review_bucket level 只能是 0-%d，实际是 %d", len(bucketNames)-1, n)
		}
		return ReviewBucket(n), nil
	}
	v = strings.ReplaceAll(v, "-", "_")
	for i, name := range bucketNames {
		if v == name {
			return ReviewBucket(i), nil
		}
	}
	return 0, fmt.Errorf("未知 review_bucket：%q", s)
}

func (b ReviewBucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *ReviewBucket) UnmarshalText(text []byte) error {
	v, err := ParseReviewBucket(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// FilterOptions 是一次筛选的全部输入。
// MinRating/MaxRating 的顺序无关：使用前由 filter.NormalizeRange 交换。
type FilterOptions struct {
	LinkType  LinkType     `json:"link_type"`
	MinRating float64      `json:"min_rating"`
	MaxRating float64      `json:"max_rating"`
	Bucket    ReviewBucket `json:"review_bucket"`
}

const (
	DefaultMinRating = 0
	DefaultMaxRating = 10
)

// DefaultFilterOptions 对应弹窗的初始状态：电影页、0-10 分、全部评价人数。
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		LinkType:  LinkMovie,
		MinRating: DefaultMinRating,
		MaxRating: DefaultMaxRating,
		Bucket:    BucketAll,
	}
}
