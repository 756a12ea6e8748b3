package dataset

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/DBPick/internal/domain"
)

const header = "电影ID,电影链接,剧照链接,评分,评价人数\n"

func TestParseMovies_KeepsFileOrder(t *testing.T) {
	text := header +
		"3,https://movie.douban.com/subject/3,https://movie.douban.com/subject/3/all_photos,7.5,120人评价\n" +
		"1,https://movie.douban.com/subject/1,https://movie.douban.com/subject/1/all_photos,9.7,3021569人评价\n" +
		"2,https://movie.douban.com/subject/2,https://movie.douban.com/subject/2/all_photos,8,45人评价\n"

	got, st := ParseMovies(text)
	if len(got) != 3 {
		t.Fatalf("期望 3 条记录，实际 %d", len(got))
	}
	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	if diff := cmp.Diff([]string{"3", "1", "2"}, ids); diff != "" {
		t.Fatalf("记录顺序不符合文件顺序 (-want +got):\n%s", diff)
	}
	if got[1].ReviewCount != 3021569 || got[1].Rating != 9.7 {
		t.Fatalf("字段解析错误：%+v", got[1])
	}
	if st.Kept != 3 || st.Dropped != 0 || st.Lines != 3 {
		t.Fatalf("统计不正确：%+v", st)
	}
}

func TestParseMovies_DropsNonNumericRating(t *testing.T) {
	good := "1,https://a.test/1,https://a.test/1/p,8.1,100人评价\n"
	bad := "2,https://a.test/2,https://a.test/2/p,暂无评分,0人评价\n"

	all, _ := ParseMovies(header + good + good + good)
	withBad, st := ParseMovies(header + good + bad + good)

	if len(all)-len(withBad) != 1 {
		t.Fatalf("每个坏行应恰好减少 1 条：all=%d withBad=%d", len(all), len(withBad))
	}
	if st.Dropped != 1 {
		t.Fatalf("期望 dropped=1，实际 %d", st.Dropped)
	}
}

func TestParseMovies_ThousandsSeparator(t *testing.T) {
	text := header +
		"1,https://a.test/1,https://a.test/1/p,8.1,\"12,345\"\n" +
		"2,https://a.test/2,https://a.test/2/p,8.2,12,345人评价\n"

	got, _ := ParseMovies(text)
	if len(got) != 2 {
		t.Fatalf("期望 2 条记录，实际 %d", len(got))
	}
	for _, m := range got {
		if m.ReviewCount != 12345 {
			t.Fatalf("期望 review_count=12345，实际 %d（id=%s）", m.ReviewCount, m.ID)
		}
	}
}

func TestParseMovies_SkipsBlankAndShortLines(t *testing.T) {
	text := "\ufeff" + header + "\r\n" +
		"1,https://a.test/1,https://a.test/1/p,8.1,100\r\n" +
		"   \n" +
		"2,https://a.test/2,8.0\n"

	got, st := ParseMovies(text)
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("只应保留第 1 行：%+v", got)
	}
	if st.Dropped != 1 {
		t.Fatalf("短行应计入 dropped：%+v", st)
	}
}

func TestParseMovies_HeaderOnly(t *testing.T) {
	got, st := ParseMovies(header)
	if len(got) != 0 || st.Lines != 0 {
		t.Fatalf("只有表头时应为空：%+v %+v", got, st)
	}
}

func TestParseReviewCount(t *testing.T) {
	cases := map[string]int{
		"12,345":       12345,
		"3021569人评价":   3021569,
		"1,234,567人评价": 1234567,
		"暂无":           0,
		"":             0,
	}
	for in, want := range cases {
		if got := ParseReviewCount(in); got != want {
			t.Fatalf("ParseReviewCount(%q)=%d，期望 %d", in, got, want)
		}
	}
	if got := ParseReviewCount("99999999999999999999999"); got != -1 {
		t.Fatalf("溢出应返回 -1，实际 %d", got)
	}
}

func TestParseURLs_DiscardsNonAbsolute(t *testing.T) {
	text := "https://movie.douban.com/subject/1/all_photos\n" +
		"\n" +
		"  http://movie.douban.com/subject/2/all_photos  \n" +
		"movie.douban.com/subject/3\n" +
		"ftp://example.test/x\n"

	got, st := ParseURLs(text)
	want := []domain.URLRecord{
		"https://movie.douban.com/subject/1/all_photos",
		"http://movie.douban.com/subject/2/all_photos",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("URL 解析不符合预期 (-want +got):\n%s", diff)
	}
	if st.Dropped != 2 || st.Kept != 2 {
		t.Fatalf("统计不正确：%+v", st)
	}
}
