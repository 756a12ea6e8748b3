package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/John-Robertt/DBPick/internal/infra/httpx"
)

// Fetcher 读取数据源的原始文本。实现不做缓存、不做解析。
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
	// Source 返回可展示的来源描述（不含口令）。
	Source() string
}

// FileFetcher 从本地文件读取。
type FileFetcher struct {
	Path string
}

func (f FileFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Path)
}

func (f FileFetcher) Source() string { return f.Path }

// HTTPFetcher 通过 HTTP GET 读取；非 2xx 视为加载失败。
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	b, err := httpx.Get(ctx, f.Client, f.URL)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (f HTTPFetcher) Source() string { return f.URL }

// StringGetter 是 RedisFetcher 需要的最小能力；*redis.Client 直接满足。
type StringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisFetcher 从 Redis 的一个 string key 读取整份数据文件（例如 crawl --publish 写入的内容）。
type RedisFetcher struct {
	Client StringGetter
	Key    string
	Addr   string
}

func (f RedisFetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.Client == nil {
		return nil, errors.New("redis client 不能为空")
	}
	s, err := f.Client.Get(ctx, f.Key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis key %q 不存在", f.Key)
	}
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func (f RedisFetcher) Source() string { return "redis://" + f.Addr + "/" + f.Key }

// FetcherFor 按来源字符串选择 Fetcher：
//   - http:// 或 https://：HTTPFetcher（使用 httpClient）
//   - redis:// 或 rediss://：RedisFetcher，key 通过查询参数 ?key= 指定
//   - file:// 或其它：本地文件路径（相对路径相对 baseDir）
func FetcherFor(source, baseDir string, httpClient *http.Client) (Fetcher, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("数据来源不能为空")
	}

	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return HTTPFetcher{URL: source, Client: httpClient}, nil
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return newRedisFetcher(source)
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(source)
		if err != nil {
			return nil, err
		}
		return FileFetcher{Path: filepath.FromSlash(u.Path)}, nil
	default:
		p := filepath.Clean(source)
		if !filepath.IsAbs(p) && baseDir != "" {
			p = filepath.Join(baseDir, p)
		}
		return FileFetcher{Path: p}, nil
	}
}

func newRedisFetcher(source string) (Fetcher, error) {
	key, clean, err := SplitRedisKey(source)
	if err != nil {
		return nil, err
	}
	opt, err := redis.ParseURL(clean)
	if err != nil {
		return nil, fmt.Errorf("redis 地址无效：%w", err)
	}
	return RedisFetcher{Client: redis.NewClient(opt), Key: key, Addr: opt.Addr}, nil
}

// SplitRedisKey 从 redis URL 中取出 ?key=，并返回去掉 key 参数后的 URL（供 redis.ParseURL 使用）。
func SplitRedisKey(source string) (key, clean string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("redis 地址无效：%w", err)
	}
	q := u.Query()
	key = strings.TrimSpace(q.Get("key"))
	if key == "" {
		return "", "", fmt.Errorf("redis 地址缺少 key 参数：%q", source)
	}
	q.Del("key")
	u.RawQuery = q.Encode()
	return key, u.String(), nil
}
