package douban

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/DBPick/internal/infra/httpx"
)

// Subject 是条目详情页解析出的最小元数据。
type Subject struct {
	ID       string
	Title    string
	Year     int
	Rating   float64
	Votes    int
	Genres   []string
	RuntimeM int
	Website  string
}

// Label 是面向用户的简短描述，例如 "肖申克的救赎 (1994)"。
func (s Subject) Label() string {
	if s.Year > 0 {
		return s.Title + " (" + strconv.Itoa(s.Year) + ")"
	}
	return s.Title
}

var subjectIDRE = regexp.MustCompile(`/subject/(\d+)`)

// SubjectID 从条目/剧照链接中提取条目 ID。
func SubjectID(u string) (string, bool) {
	m := subjectIDRE.FindStringSubmatch(u)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// ParseSubject 解析条目详情页 HTML；必须是纯函数（只依赖输入）。
func ParseSubject(html []byte, pageURL string) (Subject, error) {
	if len(html) == 0 {
		return Subject{}, errors.New("html 为空")
	}
	if bytes.Contains(html, []byte(blockedMarker)) {
		return Subject{}, &BlockedError{URL: pageURL, Reason: blockedMarker}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Subject{}, err
	}

	title := normSpace(doc.Find("span[property='v:itemreviewed']").First().Text())
	if title == "" {
		title = strings.TrimSuffix(normSpace(doc.Find("title").First().Text()), " (豆瓣)")
	}
	if title == "" {
		return Subject{}, errors.New("未找到条目标题")
	}

	s := Subject{
		Title:   title,
		Year:    firstInt(doc.Find("#content h1 span.year").First().Text()),
		Website: strings.TrimSpace(pageURL),
	}
	s.ID, _ = SubjectID(pageURL)

	if v, err := strconv.ParseFloat(strings.TrimSpace(doc.Find("strong[property='v:average']").First().Text()), 64); err == nil {
		s.Rating = v
	}
	s.Votes = firstInt(doc.Find("span[property='v:votes']").First().Text())
	if c, ok := doc.Find("span[property='v:runtime']").First().Attr("content"); ok {
		s.RuntimeM = firstInt(c)
	} else {
		s.RuntimeM = firstInt(doc.Find("span[property='v:runtime']").First().Text())
	}
	doc.Find("span[property='v:genre']").Each(func(_ int, g *goquery.Selection) {
		if t := strings.TrimSpace(g.Text()); t != "" {
			s.Genres = append(s.Genres, t)
		}
	})
	return s, nil
}

// Describer 抓取条目页并返回标题，供“已打开”提示使用。
type Describer struct {
	Client *http.Client
}

// Describe 接受条目链接或剧照链接（/all_photos 会被归一到条目页）。
func (d Describer) Describe(ctx context.Context, link string) (string, error) {
	id, ok := SubjectID(link)
	if !ok {
		return "", errors.New("不是豆瓣条目链接：" + link)
	}
	pageURL := SubjectURL(id) + "/"
	if base := subjectBase(link); base != "" {
		pageURL = base + "/subject/" + id + "/"
	}
	html, err := httpx.Get(ctx, d.Client, pageURL)
	if err != nil {
		return "", err
	}
	s, err := ParseSubject(html, pageURL)
	if err != nil {
		return "", err
	}
	return s.Label(), nil
}

// subjectBase 返回链接的 scheme://host 部分（测试中指向 httptest 服务）。
func subjectBase(link string) string {
	i := strings.Index(link, "/subject/")
	if i <= 0 {
		return ""
	}
	return link[:i]
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

var firstIntRE = regexp.MustCompile(`\d+`)

func firstInt(s string) int {
	m := firstIntRE.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
