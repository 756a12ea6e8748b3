// Package douban 封装豆瓣电影的两个页面来源：分类排行 JSON 接口与条目详情页。
package douban

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/DBPick/internal/infra/httpx"
)

const (
	DefaultBaseURL = "https://movie.douban.com"
	// PageLimit 是排行接口每页条数。
	PageLimit = 20
)

// blockedMarker 出现在豆瓣反爬拦截页中。
const blockedMarker = "检测到有异常请求"

// BlockedError 表示请求被站点拦截（403 或返回了异常请求提示页）。
// 抓取层据此做长时间等待后重试，不尝试绕过验证。
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

func IsBlocked(err error) bool {
	var e *BlockedError
	return errors.As(err, &e)
}

// ChartMovie 是排行接口返回的一条电影（只保留用到的字段）。
type ChartMovie struct {
	ID        FlexString `json:"id"`
	Title     string     `json:"title"`
	Score     FlexString `json:"score"`
	VoteCount int        `json:"vote_count"`
	URL       string     `json:"url"`
}

// FlexString 兼容接口里时而是字符串、时而是数字的字段。
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// Chart 访问 /j/chart/top_list。
type Chart struct {
	BaseURL string
	Client  *http.Client
}

func (c Chart) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// PageURL 构造排行接口 URL：type / interval_id / start / limit。
func (c Chart) PageURL(typeID int, interval string, start int) string {
	q := url.Values{}
	q.Set("type", strconv.Itoa(typeID))
	q.Set("interval_id", interval)
	q.Set("action", "")
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(PageLimit))
	return c.baseURL() + "/j/chart/top_list?" + q.Encode()
}

// FetchPage 抓取一页原始 JSON。403 与异常请求提示页返回 *BlockedError。
func (c Chart) FetchPage(ctx context.Context, typeID int, interval string, start int) ([]byte, error) {
	u := c.PageURL(typeID, interval, start)
	b, err := httpx.Get(ctx, c.Client, u)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusForbidden {
			return nil, &BlockedError{URL: u, Reason: "HTTP 403"}
		}
		return nil, err
	}
	if bytes.Contains(b, []byte(blockedMarker)) {
		return nil, &BlockedError{URL: u, Reason: blockedMarker}
	}
	return b, nil
}

// ParsePage 解析排行接口 JSON。非 JSON（通常是拦截页）返回错误。
func ParsePage(b []byte) ([]ChartMovie, error) {
	var out []ChartMovie
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("JSON解析错误，可能是反爬措施：%w", err)
	}
	return out, nil
}

// SubjectURL / PhotosURL 与 movie_info.csv 中的链接格式一致。
func SubjectURL(id string) string { return DefaultBaseURL + "/subject/" + id }

func PhotosURL(id string) string { return DefaultBaseURL + "/subject/" + id + "/all_photos" }
