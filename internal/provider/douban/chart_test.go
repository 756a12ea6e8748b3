package douban

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestChart_PageURL(t *testing.T) {
	u := Chart{BaseURL: "https://movie.douban.com/"}.PageURL(11, "100:90", 40)
	pu, err := url.Parse(u)
	if err != nil {
		t.Fatalf("URL 无效：%v", err)
	}
	if pu.Path != "/j/chart/top_list" {
		t.Fatalf("path 不符合预期：%q", pu.Path)
	}
	q := pu.Query()
	if q.Get("type") != "11" || q.Get("interval_id") != "100:90" || q.Get("start") != "40" || q.Get("limit") != "20" {
		t.Fatalf("query 不符合预期：%v", q)
	}
	if _, ok := q["action"]; !ok {
		t.Fatalf("缺少 action 参数：%v", q)
	}
}

func TestChart_FetchPage_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") == "1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<html>检测到有异常请求从你的 IP 发出</html>"))
	}))
	defer srv.Close()

	c := Chart{BaseURL: srv.URL, Client: srv.Client()}
	if _, err := c.FetchPage(context.Background(), 1, "100:90", 0); !IsBlocked(err) {
		t.Fatalf("403 应识别为拦截：%v", err)
	}
	if _, err := c.FetchPage(context.Background(), 2, "100:90", 0); !IsBlocked(err) {
		t.Fatalf("异常请求提示页应识别为拦截：%v", err)
	}
}

func TestParsePage(t *testing.T) {
	b := []byte(`[
		{"id":"1292052","title":"肖申克的救赎","score":"9.7","vote_count":3021569},
		{"id":1291546,"title":"霸王别姬","score":9.6,"vote_count":2230000},
		{"id":"3","title":"x","score":null,"vote_count":0}
	]`)
	got, err := ParsePage(b)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []ChartMovie{
		{ID: "1292052", Title: "肖申克的救赎", Score: "9.7", VoteCount: 3021569},
		{ID: "1291546", Title: "霸王别姬", Score: "9.6", VoteCount: 2230000},
		{ID: "3", Title: "x", Score: "", VoteCount: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("解析结果不符合预期：\ngot=%+v\nwant=%+v", got, want)
	}

	if _, err := ParsePage([]byte("<html/>")); err == nil {
		t.Fatalf("非 JSON 应报错")
	}
}

func TestParseSubject_Fixture(t *testing.T) {
	html, err := os.ReadFile(filepath.Join("testdata", "subject_1292052.html"))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	s, err := ParseSubject(html, "https://movie.douban.com/subject/1292052/")
	if err != nil {
		t.Fatalf("ParseSubject 失败：%v", err)
	}
	if s.ID != "1292052" || s.Year != 1994 || s.Rating != 9.7 || s.Votes != 3021569 || s.RuntimeM != 142 {
		t.Fatalf("字段解析错误：%+v", s)
	}
	if s.Title != "肖申克的救赎 The Shawshank Redemption" {
		t.Fatalf("标题解析错误：%q", s.Title)
	}
	if !reflect.DeepEqual(s.Genres, []string{"剧情", "犯罪"}) {
		t.Fatalf("类型解析错误：%v", s.Genres)
	}
	if s.Label() != "肖申克的救赎 The Shawshank Redemption (1994)" {
		t.Fatalf("Label 不符合预期：%q", s.Label())
	}
}

func TestDescriber_PhotosLinkResolvesSubject(t *testing.T) {
	html, err := os.ReadFile(filepath.Join("testdata", "subject_1292052.html"))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write(html)
	}))
	defer srv.Close()

	d := Describer{Client: srv.Client()}
	label, err := d.Describe(context.Background(), srv.URL+"/subject/1292052/all_photos")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if gotPath != "/subject/1292052/" {
		t.Fatalf("应请求条目页，实际 %q", gotPath)
	}
	if label != "肖申克的救赎 The Shawshank Redemption (1994)" {
		t.Fatalf("label 不符合预期：%q", label)
	}
}

func TestTypeByName(t *testing.T) {
	if mt, ok := TypeByName("科幻"); !ok || mt.ID != 17 {
		t.Fatalf("按中文名查找失败：%+v", mt)
	}
	if mt, ok := TypeByName("31"); !ok || mt.Name != "黑色电影" {
		t.Fatalf("按 ID 查找失败：%+v", mt)
	}
	if _, ok := TypeByName("不存在"); ok {
		t.Fatalf("不存在的分类应返回 ok=false")
	}
}
