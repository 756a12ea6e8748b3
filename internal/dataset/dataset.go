// Package dataset 把原始数据文件解析为记录列表。
//
// 两种数据文件：
//   - movie_info.csv：表头 + 五列（电影ID,电影链接,剧照链接,评分,评价人数）
//   - douban_photo_urls.txt：每行一个绝对 URL
//
// 策略 DropMalformed：单行格式错误只丢弃该行，不会让整次解析失败。
package dataset

import (
	"encoding/csv"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/DBPick/internal/domain"
)

// Policy 描述解析阶段遇到坏行时的处理方式。目前只有 DropMalformed。
type Policy int

const (
	// DropMalformed：坏行静默丢弃，只计入 Stats.Dropped。
	DropMalformed Policy = iota
)

// movieFields 是 movie_info.csv 的固定列数。
const movieFields = 5

// Stats 记录一次解析的行数统计（空行不计入 Lines）。
type Stats struct {
	Lines   int
	Kept    int
	Dropped int
}

var (
	reviewCountRE = regexp.MustCompile(`\d+(?:,\d+)*`)
	absURLRE      = regexp.MustCompile(`^https?://.+`)
)

// ParseMovies 解析 CSV 文本。首行视为表头直接跳过（与文件内容无关）。
func ParseMovies(text string) ([]domain.MovieRecord, Stats) {
	lines := splitLines(text)
	if len(lines) > 0 {
		lines = lines[1:]
	}

	var st Stats
	out := make([]domain.MovieRecord, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		st.Lines++

		m, ok := parseMovieLine(line)
		if !ok {
			st.Dropped++
			continue
		}
		out = append(out, m)
	}
	st.Kept = len(out)
	return out, st
}

func parseMovieLine(line string) (domain.MovieRecord, bool) {
	fields, ok := splitCSVLine(line)
	if !ok || len(fields) < movieFields {
		return domain.MovieRecord{}, false
	}
	// 评价人数未加引号且带千分位时会被拆成多列：把尾部重新拼回去。
	if len(fields) > movieFields {
		fields = append(fields[:movieFields-1], strings.Join(fields[movieFields-1:], ","))
	}

	rating, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
	if err != nil || math.IsNaN(rating) || math.IsInf(rating, 0) {
		return domain.MovieRecord{}, false
	}
	reviews := ParseReviewCount(fields[4])
	if reviews < 0 {
		return domain.MovieRecord{}, false
	}

	return domain.MovieRecord{
		ID:          strings.TrimSpace(fields[0]),
		MovieLink:   strings.TrimSpace(fields[1]),
		PhotoLink:   strings.TrimSpace(fields[2]),
		Rating:      rating,
		ReviewCount: reviews,
	}, true
}

func splitCSVLine(line string) ([]string, bool) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rec, err := r.Read()
	if err != nil {
		return nil, false
	}
	return rec, true
}

// ParseReviewCount 从 "12,345人评价" 这类文本中提取数字；找不到数字时返回 0。
// 溢出时返回 -1（调用方据此丢弃该行）。
func ParseReviewCount(s string) int {
	m := reviewCountRE.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return -1
	}
	return n
}

// ParseURLs 解析 URL 列表：逐行 trim，非空且匹配 ^https?://.+ 的行保留。
func ParseURLs(text string) ([]domain.URLRecord, Stats) {
	var st Stats
	lines := splitLines(text)
	out := make([]domain.URLRecord, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		st.Lines++
		if !IsAbsURL(line) {
			st.Dropped++
			continue
		}
		out = append(out, domain.URLRecord(line))
	}
	st.Kept = len(out)
	return out, st
}

// IsAbsURL 判断 s 是否是 http/https 绝对 URL（只做前缀级校验）。
func IsAbsURL(s string) bool {
	return absURLRE.MatchString(s)
}

func splitLines(text string) []string {
	text = strings.TrimPrefix(text, "\ufeff")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}
