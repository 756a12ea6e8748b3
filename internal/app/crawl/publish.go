package crawl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/John-Robertt/DBPick/internal/loader"
)

// DefaultPublishKey 是未指定 ?key= 时使用的 key 前缀。
const DefaultPublishKey = "dbpick"

// Setter 是发布需要的最小能力；*redis.Client 直接满足。
type Setter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Publisher 把抓取结果写入 Redis 的两个 string key：
//
//	<prefix>:photo_urls  剧照链接列表
//	<prefix>:movie_info  电影信息 CSV
//
// dbpick open/urls 可以用 redis://host:port/db?key=<prefix>:movie_info 直接读取。
type Publisher struct {
	Client    Setter
	URLsKey   string
	MoviesKey string

	close func() error
}

// NewRedisPublisher 解析 redis://host:port/db?key=<prefix>。
func NewRedisPublisher(raw string) (*Publisher, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("redis 地址无效：%w", err)
	}
	q := u.Query()
	if strings.TrimSpace(q.Get("key")) == "" {
		q.Set("key", DefaultPublishKey)
		u.RawQuery = q.Encode()
	}
	prefix, clean, err := loader.SplitRedisKey(u.String())
	if err != nil {
		return nil, err
	}
	opt, err := redis.ParseURL(clean)
	if err != nil {
		return nil, fmt.Errorf("redis 地址无效：%w", err)
	}
	c := redis.NewClient(opt)
	p := KeysFor(prefix)
	p.Client = c
	p.close = c.Close
	return p, nil
}

// KeysFor 按前缀生成两个 key（不带 client）。
func KeysFor(prefix string) *Publisher {
	return &Publisher{URLsKey: prefix + ":photo_urls", MoviesKey: prefix + ":movie_info"}
}

// Publish 写入两个 key，不设过期时间。
func (p *Publisher) Publish(ctx context.Context, urls, movies []byte) error {
	if p.Client == nil {
		return fmt.Errorf("redis client 不能为空")
	}
	if err := p.Client.Set(ctx, p.URLsKey, string(urls), 0).Err(); err != nil {
		return fmt.Errorf("发布 %s 失败：%w", p.URLsKey, err)
	}
	if err := p.Client.Set(ctx, p.MoviesKey, string(movies), 0).Err(); err != nil {
		return fmt.Errorf("发布 %s 失败：%w", p.MoviesKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close()
}
