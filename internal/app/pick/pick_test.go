package pick

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/John-Robertt/DBPick/internal/dispatch"
	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/loader"
	"github.com/John-Robertt/DBPick/internal/metrics"
)

const moviesCSV = `电影ID,电影链接,剧照链接,评分,评价人数
1,https://movie.douban.com/subject/1/,https://movie.douban.com/subject/1/all_photos,9.7,"3,051,234人评价"
2,https://movie.douban.com/subject/2/,https://movie.douban.com/subject/2/all_photos,8.1,5432人评价
3,https://movie.douban.com/subject/3/,https://movie.douban.com/subject/3/all_photos,6.0,321人评价
bad,line
`

type textFetcher struct {
	text string
	err  error
}

func (f textFetcher) Fetch(context.Context) ([]byte, error) { return []byte(f.text), f.err }
func (f textFetcher) Source() string                        { return "mem://test" }

type recordOpener struct {
	mu   sync.Mutex
	urls []string
	fail map[string]error
}

func (o *recordOpener) Open(_ context.Context, u string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.fail[u]; err != nil {
		return err
	}
	o.urls = append(o.urls, u)
	return nil
}

// firstRand 总是取下标 0，让抽取结果可预测。
type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

func newPicker(t *testing.T, movies, urls string, op *recordOpener) *Picker {
	t.Helper()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CST", 8*3600))
	return &Picker{
		Movies:     loader.NewMovies(textFetcher{text: movies}),
		URLs:       loader.NewURLs(textFetcher{text: urls}),
		Dispatcher: dispatch.Dispatcher{Opener: op},
		Rand:       firstRand{},
		Metrics:    metrics.New(),
		Now:        func() time.Time { return fixed },
		NewID:      func() string { return "id-1" },
	}
}

func TestOpenMovies_LazyLoadAndOpen(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, moviesCSV, "", op)

	if p.Movies.State() != loader.StateIdle {
		t.Fatalf("期望初始为 idle，实际=%v", p.Movies.State())
	}
	rep := p.OpenMovies(context.Background(), Request{
		Filter: domain.FilterOptions{LinkType: domain.LinkPhotos, MinRating: 9, MaxRating: 7},
		Count:  1,
	})

	if rep.Status != domain.StatusOpened {
		t.Fatalf("期望 opened，实际=%q (%s)", rep.Status, rep.Message)
	}
	if rep.Loaded != 3 || rep.Dropped != 1 || rep.Candidate != 1 {
		t.Fatalf("统计错误：loaded=%d dropped=%d candidates=%d", rep.Loaded, rep.Dropped, rep.Candidate)
	}
	if diff := cmp.Diff([]string{"https://movie.douban.com/subject/2/all_photos"}, op.urls); diff != "" {
		t.Fatalf("打开的链接不一致 (-want +got):\n%s", diff)
	}
	if rep.Message != "已成功打开随机剧照页面" {
		t.Fatalf("提示文案错误：%q", rep.Message)
	}
	if rep.Options.MinRating != 7 || rep.Options.MaxRating != 9 {
		t.Fatalf("评分区间应被交换：%+v", rep.Options)
	}
	if rep.StartedAt.Location() != time.UTC {
		t.Fatalf("时间应为 UTC")
	}
	if rep.ID != "id-1" {
		t.Fatalf("id 错误：%q", rep.ID)
	}
}

func TestOpenMovies_EmptySelectionOpensNothing(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, moviesCSV, "", op)

	rep := p.OpenMovies(context.Background(), Request{
		Filter: domain.FilterOptions{LinkType: domain.LinkMovie, MinRating: 0, MaxRating: 10, Bucket: domain.BucketHundredsOfThousands},
		Count:  1,
	})
	if len(op.urls) != 0 || len(rep.Items) != 0 {
		t.Fatalf("空选择不应打开任何链接：%v", op.urls)
	}
	if rep.Status != domain.StatusEmpty || rep.ErrorCode != domain.ErrCodeEmptySelection {
		t.Fatalf("期望 empty/empty_selection，实际 %q/%q", rep.Status, rep.ErrorCode)
	}
	if rep.Message != domain.MsgEmptySelection {
		t.Fatalf("提示文案错误：%q", rep.Message)
	}
	if got := testutil.ToFloat64(p.Metrics.EmptySelections); got != 1 {
		t.Fatalf("empty_selections 应为 1，实际 %v", got)
	}
}

func TestOpenMovies_NotLoadedMessage(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, "电影ID,电影链接,剧照链接,评分,评价人数\n", "", op)

	rep := p.OpenMovies(context.Background(), Request{Filter: domain.DefaultFilterOptions()})
	if rep.ErrorCode != domain.ErrCodeNotLoaded || rep.Message != domain.MsgNotLoaded {
		t.Fatalf("期望 not_loaded 文案，实际 %q/%q", rep.ErrorCode, rep.Message)
	}
	if len(op.urls) != 0 {
		t.Fatalf("不应打开链接")
	}
}

func TestOpenMovies_LoadFailed(t *testing.T) {
	p := newPicker(t, "", "", &recordOpener{})
	p.Movies = loader.NewMovies(textFetcher{err: errors.New("connection refused")})

	rep := p.OpenMovies(context.Background(), Request{Filter: domain.DefaultFilterOptions()})
	if rep.Status != domain.StatusFailed || rep.ErrorCode != domain.ErrCodeLoadFailed {
		t.Fatalf("期望 failed/load_failed，实际 %q/%q", rep.Status, rep.ErrorCode)
	}
	if !strings.HasPrefix(rep.Message, "加载数据失败") {
		t.Fatalf("提示文案错误：%q", rep.Message)
	}
}

func TestOpenMovies_MultipleDistinctAndPartial(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, moviesCSV, "", op)

	rep := p.OpenMovies(context.Background(), Request{Filter: domain.DefaultFilterOptions(), Count: 10})
	if rep.Status != domain.StatusOpened || rep.Summary.Opened != 3 {
		t.Fatalf("期望全部 3 部打开，实际 status=%q opened=%d", rep.Status, rep.Summary.Opened)
	}
	want := []string{
		"https://movie.douban.com/subject/1/",
		"https://movie.douban.com/subject/2/",
		"https://movie.douban.com/subject/3/",
	}
	if diff := cmp.Diff(want, op.urls); diff != "" {
		t.Fatalf("打开顺序不一致 (-want +got):\n%s", diff)
	}
	if rep.Message != "已成功打开 3 个随机电影初始页面" {
		t.Fatalf("提示文案错误：%q", rep.Message)
	}
}

func TestOpenMovies_StrictExhausted(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, moviesCSV, "", op)

	rep := p.OpenMovies(context.Background(), Request{Filter: domain.DefaultFilterOptions(), Count: 5, Strict: true})
	if rep.ErrorCode != domain.ErrCodeExhausted || rep.Status != domain.StatusFailed {
		t.Fatalf("期望 selection_exhausted，实际 %q/%q", rep.Status, rep.ErrorCode)
	}
	if len(op.urls) != 0 {
		t.Fatalf("strict 模式下不足时不应打开任何链接")
	}
}

func TestOpenMovies_OpenFailure(t *testing.T) {
	op := &recordOpener{fail: map[string]error{
		"https://movie.douban.com/subject/1/": errors.New("xdg-open: not found"),
	}}
	p := newPicker(t, moviesCSV, "", op)

	rep := p.OpenMovies(context.Background(), Request{Filter: domain.DefaultFilterOptions(), Count: 2})
	if rep.Status != domain.StatusPartial || rep.ErrorCode != domain.ErrCodeOpenFailed {
		t.Fatalf("期望 partial/open_failed，实际 %q/%q", rep.Status, rep.ErrorCode)
	}
	if rep.Summary.Opened != 1 || rep.Summary.Failed != 1 {
		t.Fatalf("summary 错误：%+v", rep.Summary)
	}
	if got := testutil.ToFloat64(p.Metrics.OpensTotal.WithLabelValues("movie", "failure")); got != 1 {
		t.Fatalf("opens failure 计数错误：%v", got)
	}
}

func TestOpenURLs(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, "", "https://a.example/1\nnot a url\nhttps://a.example/2\n", op)

	rep := p.OpenURLs(context.Background(), 1, false)
	if rep.Status != domain.StatusOpened || rep.Kind != KindURLs {
		t.Fatalf("期望 opened，实际 %q (%s)", rep.Status, rep.Message)
	}
	if rep.Loaded != 2 || rep.Dropped != 1 {
		t.Fatalf("统计错误：loaded=%d dropped=%d", rep.Loaded, rep.Dropped)
	}
	if diff := cmp.Diff([]string{"https://a.example/1"}, op.urls); diff != "" {
		t.Fatalf("打开的链接不一致 (-want +got):\n%s", diff)
	}
}

func TestOpenURLs_Empty(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, "", "only junk\n", op)

	rep := p.OpenURLs(context.Background(), 1, false)
	if rep.Status != domain.StatusEmpty || rep.Message != domain.MsgURLsEmpty {
		t.Fatalf("期望 empty 与链接为空文案，实际 %q/%q", rep.Status, rep.Message)
	}
}

func TestOpenMovies_LoadOnlyOnce(t *testing.T) {
	op := &recordOpener{}
	p := newPicker(t, moviesCSV, "", op)
	p.Movies = loader.NewMovies(textFetcher{text: moviesCSV}, loader.WithHook(p.Metrics.LoadHook(KindMovies)))

	for i := 0; i < 3; i++ {
		p.OpenMovies(context.Background(), Request{Filter: domain.DefaultFilterOptions()})
	}
	if got := testutil.ToFloat64(p.Metrics.LoadsTotal.WithLabelValues(KindMovies, "success")); got != 1 {
		t.Fatalf("期望只加载一次，实际 %v", got)
	}
}
