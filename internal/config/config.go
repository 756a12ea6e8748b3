package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/DBPick/internal/domain"
	"github.com/John-Robertt/DBPick/internal/opener"
	"github.com/John-Robertt/DBPick/internal/provider/douban"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
)

// 配置文件按顺序发现，第一个存在的生效。
var fileNames = []string{"dbpick.json", "dbpick.yaml", "dbpick.yml"}

// .env 按顺序读取，后者覆盖前者；进程环境变量优先于两者。
var envFiles = []string{".env", ".env.local"}

const (
	DefaultMoviesSource = "movie_info.csv"
	DefaultURLsSource   = "douban_photo_urls.txt"
	DefaultCount        = 1
	MaxCount            = 50

	DefaultCrawlOutDir   = "."
	DefaultCrawlMinDelay = 1500 * time.Millisecond
	DefaultCrawlMaxDelay = 3500 * time.Millisecond
	DefaultTestLimit     = 20
)

// 环境变量名。只覆盖“部署相关”的字段，筛选条件不走环境变量。
const (
	EnvMoviesSource   = "DBPICK_MOVIES_SOURCE"
	EnvURLsSource     = "DBPICK_URLS_SOURCE"
	EnvOpener         = "DBPICK_OPENER"
	EnvChromeDebugURL = "DBPICK_CHROME_DEBUG_URL"
	EnvProxyURL       = "DBPICK_PROXY_URL"
	EnvMetricsFile    = "DBPICK_METRICS_FILE"
	EnvRedisURL       = "DBPICK_REDIS_URL"
)

// CLIArgs 保留“是否显式指定”的信息，保证 --strict=false 之类的参数能覆盖配置文件。
// 评分保留原始字符串：无法解析时 min 取 0、max 取 10。
type CLIArgs struct {
	Config string

	MoviesSource    string
	MoviesSourceSet bool
	URLsSource      string
	URLsSourceSet   bool

	LinkType    string
	LinkTypeSet bool

	MinRating    string
	MinRatingSet bool
	MaxRating    string
	MaxRatingSet bool

	Bucket    string
	BucketSet bool

	Count    int
	CountSet bool

	Strict    bool
	StrictSet bool

	Opener    string
	OpenerSet bool

	ChromeDebugURL    string
	ChromeDebugURLSet bool

	Describe    bool
	DescribeSet bool

	MetricsFile    string
	MetricsFileSet bool

	CrawlOutDir    string
	CrawlOutDirSet bool
	CrawlTest      bool
	CrawlTestSet   bool
	CrawlTypes     []string
	CrawlTypesSet  bool
	Publish        string
	PublishSet     bool
}

// FileConfig 对应 dbpick.json / dbpick.yaml。
type FileConfig struct {
	MoviesSource   string       `json:"movies_source" yaml:"movies_source"`
	URLsSource     string       `json:"urls_source" yaml:"urls_source"`
	LinkType       string       `json:"link_type" yaml:"link_type"`
	MinRating      *float64     `json:"min_rating" yaml:"min_rating"`
	MaxRating      *float64     `json:"max_rating" yaml:"max_rating"`
	ReviewBucket   string       `json:"review_bucket" yaml:"review_bucket"`
	Count          int          `json:"count" yaml:"count"`
	Strict         *bool        `json:"strict" yaml:"strict"`
	Opener         string       `json:"opener" yaml:"opener"`
	ChromeDebugURL string       `json:"chrome_debug_url" yaml:"chrome_debug_url"`
	Describe       *bool        `json:"describe" yaml:"describe"`
	MetricsFile    string       `json:"metrics_file" yaml:"metrics_file"`
	Proxy          *ProxyConfig `json:"proxy" yaml:"proxy"`
	Crawl          *CrawlConfig `json:"crawl" yaml:"crawl"`
}

type ProxyConfig struct {
	URL string `json:"url" yaml:"url"`
}

type CrawlConfig struct {
	OutDir     string   `json:"out_dir" yaml:"out_dir"`
	BaseURL    string   `json:"base_url" yaml:"base_url"`
	MinDelayMS int      `json:"min_delay_ms" yaml:"min_delay_ms"`
	MaxDelayMS int      `json:"max_delay_ms" yaml:"max_delay_ms"`
	Types      []string `json:"types" yaml:"types"`
	Intervals  []string `json:"intervals" yaml:"intervals"`
	Test       *bool    `json:"test" yaml:"test"`
	TestLimit  int      `json:"test_limit" yaml:"test_limit"`
	CacheDir   string   `json:"cache_dir" yaml:"cache_dir"`
	Publish    string   `json:"publish" yaml:"publish"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 为空表示没有使用配置文件。
	ConfigPath string
	// BaseDir 是相对路径的基准：配置文件所在目录，否则为 cwd。
	BaseDir string

	MoviesSource string
	URLsSource   string

	Filter domain.FilterOptions
	Count  int
	Strict bool

	Opener         string
	ChromeDebugURL string
	Describe       bool
	ProxyURL       string
	MetricsFile    string

	Crawl CrawlSettings
}

type CrawlSettings struct {
	OutDir    string
	BaseURL   string
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Types     []douban.MovieType
	Intervals []string
	Test      bool
	TestLimit int
	CacheDir  string
	// Publish 是 redis://host:port/db?key=... 形式的地址；为空表示不发布。
	Publish string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			if e.Path == "" {
				return fmt.Sprintf("%s：%v", e.Code, e.Err)
			}
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// lookupEnv 可在测试中替换。
var lookupEnv = os.LookupEnv

// LoadEffective 发现并读取配置文件与 .env，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：该文件必须存在
// 2) 否则依次尝试 <cwd>/dbpick.json、dbpick.yaml、dbpick.yml（均可选）
//
// 覆盖优先级：CLI > 配置文件 > 环境变量（含 .env）> 内置默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)
	if strings.TrimSpace(cli.Config) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.Config)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		for _, name := range fileNames {
			p := filepath.Join(cwdAbs, name)
			c, exists, err := readFileConfig(p)
			if err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
			}
			if exists {
				cfgPath, fc = p, c
				break
			}
		}
	}

	baseDir := cwdAbs
	if cfgPath != "" {
		baseDir = filepath.Dir(cfgPath)
	}

	env, err := readEnv(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("读取 .env 失败：%w", err)}
	}
	return merge(baseDir, cli, fc, env, cfgPath)
}

func merge(baseDir string, cli CLIArgs, fc FileConfig, env map[string]string, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	eff := EffectiveConfig{ConfigPath: cfgPath, BaseDir: baseDir}

	eff.MoviesSource = pick(cli.MoviesSourceSet, cli.MoviesSource, fc.MoviesSource, env[EnvMoviesSource], DefaultMoviesSource)
	eff.URLsSource = pick(cli.URLsSourceSet, cli.URLsSource, fc.URLsSource, env[EnvURLsSource], DefaultURLsSource)

	// 筛选条件：CLI > config > 默认。
	eff.Filter = domain.DefaultFilterOptions()
	lt := pick(cli.LinkTypeSet, cli.LinkType, fc.LinkType, "", string(domain.LinkMovie))
	t, err := domain.ParseLinkType(lt)
	if err != nil {
		return EffectiveConfig{}, invalid("link_type 无效：%w", err)
	}
	eff.Filter.LinkType = t

	if fc.MinRating != nil {
		eff.Filter.MinRating = *fc.MinRating
	}
	if cli.MinRatingSet {
		eff.Filter.MinRating = ParseRating(cli.MinRating, domain.DefaultMinRating)
	}
	if fc.MaxRating != nil {
		eff.Filter.MaxRating = *fc.MaxRating
	}
	if cli.MaxRatingSet {
		eff.Filter.MaxRating = ParseRating(cli.MaxRating, domain.DefaultMaxRating)
	}

	bucket := pick(cli.BucketSet, cli.Bucket, fc.ReviewBucket, "", domain.BucketAll.String())
	b, err := domain.ParseReviewBucket(bucket)
	if err != nil {
		return EffectiveConfig{}, invalid("review_bucket 无效：%w", err)
	}
	eff.Filter.Bucket = b

	eff.Count = DefaultCount
	if fc.Count != 0 {
		eff.Count = fc.Count
	}
	if cli.CountSet {
		eff.Count = cli.Count
	}
	// 与弹窗的数字输入一致：下限 1；上限截断，避免一次性打开过多标签页。
	if eff.Count < 1 {
		eff.Count = 1
	}
	if eff.Count > MaxCount {
		eff.Count = MaxCount
	}

	eff.Strict = pickBool(cli.StrictSet, cli.Strict, fc.Strict, false)
	eff.Describe = pickBool(cli.DescribeSet, cli.Describe, fc.Describe, false)

	eff.Opener = strings.ToLower(pick(cli.OpenerSet, cli.Opener, fc.Opener, env[EnvOpener], opener.KindSystem))
	switch eff.Opener {
	case opener.KindSystem, opener.KindChrome, opener.KindPrint:
	default:
		return EffectiveConfig{}, invalid("opener 只能是 system、chrome 或 print，实际是 %q", eff.Opener)
	}

	eff.ChromeDebugURL = pick(cli.ChromeDebugURLSet, cli.ChromeDebugURL, fc.ChromeDebugURL, env[EnvChromeDebugURL], "")
	if eff.ChromeDebugURL != "" {
		if err := validateHTTPURL(eff.ChromeDebugURL, "http", "https", "ws", "wss"); err != nil {
			return EffectiveConfig{}, invalid("chrome_debug_url 无效：%w", err)
		}
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = fc.Proxy.URL
	}
	eff.ProxyURL = pick(false, "", proxyURL, env[EnvProxyURL], "")
	if eff.ProxyURL != "" {
		if _, err := url.Parse(eff.ProxyURL); err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%w", err)
		}
	}

	eff.MetricsFile = pick(cli.MetricsFileSet, cli.MetricsFile, fc.MetricsFile, env[EnvMetricsFile], "")
	if eff.MetricsFile != "" {
		eff.MetricsFile = absCleanFrom(baseDir, eff.MetricsFile)
	}

	crawl, err := mergeCrawl(baseDir, cli, fc.Crawl, env)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.Crawl = crawl
	return eff, nil
}

func mergeCrawl(baseDir string, cli CLIArgs, cc *CrawlConfig, env map[string]string) (CrawlSettings, error) {
	if cc == nil {
		cc = &CrawlConfig{}
	}
	s := CrawlSettings{
		OutDir:    absCleanFrom(baseDir, pick(cli.CrawlOutDirSet, cli.CrawlOutDir, cc.OutDir, "", DefaultCrawlOutDir)),
		BaseURL:   strings.TrimRight(pick(false, "", cc.BaseURL, "", douban.DefaultBaseURL), "/"),
		MinDelay:  DefaultCrawlMinDelay,
		MaxDelay:  DefaultCrawlMaxDelay,
		Test:      pickBool(cli.CrawlTestSet, cli.CrawlTest, cc.Test, false),
		TestLimit: DefaultTestLimit,
		Publish:   pick(cli.PublishSet, cli.Publish, cc.Publish, env[EnvRedisURL], ""),
	}
	if err := validateHTTPURL(s.BaseURL, "http", "https"); err != nil {
		return CrawlSettings{}, fmt.Errorf("crawl.base_url 无效：%w", err)
	}
	if cc.MinDelayMS > 0 {
		s.MinDelay = time.Duration(cc.MinDelayMS) * time.Millisecond
	}
	if cc.MaxDelayMS > 0 {
		s.MaxDelay = time.Duration(cc.MaxDelayMS) * time.Millisecond
	}
	if s.MaxDelay < s.MinDelay {
		s.MinDelay, s.MaxDelay = s.MaxDelay, s.MinDelay
	}
	if cc.TestLimit > 0 {
		s.TestLimit = cc.TestLimit
	}
	if strings.TrimSpace(cc.CacheDir) != "" {
		s.CacheDir = absCleanFrom(baseDir, cc.CacheDir)
	}

	names := cc.Types
	if cli.CrawlTypesSet {
		names = cli.CrawlTypes
	}
	if len(names) == 0 {
		s.Types = append([]douban.MovieType(nil), douban.MovieTypes...)
	}
	for _, n := range names {
		t, ok := douban.TypeByName(strings.TrimSpace(n))
		if !ok {
			return CrawlSettings{}, fmt.Errorf("crawl.types 包含未知分类 %q", n)
		}
		s.Types = append(s.Types, t)
	}

	if len(cc.Intervals) == 0 {
		s.Intervals = append([]string(nil), douban.Intervals...)
	}
	for _, iv := range cc.Intervals {
		if !validInterval(iv) {
			return CrawlSettings{}, fmt.Errorf("crawl.intervals 格式应为 \"高:低\"，实际是 %q", iv)
		}
		s.Intervals = append(s.Intervals, iv)
	}

	if s.Publish != "" {
		if err := validateHTTPURL(s.Publish, "redis", "rediss"); err != nil {
			return CrawlSettings{}, fmt.Errorf("crawl.publish 无效：%w", err)
		}
	}
	return s, nil
}

// ParseRating 解析评分输入；空串或无法解析时返回 def（弹窗中 min 缺省 0、max 缺省 10）。
func ParseRating(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v != v {
		return def
	}
	return v
}

// pick 按 CLI > config > env > def 取第一个非空值。
func pick(cliSet bool, cliVal, fileVal, envVal, def string) string {
	if cliSet {
		return strings.TrimSpace(cliVal)
	}
	if v := strings.TrimSpace(fileVal); v != "" {
		return v
	}
	if v := strings.TrimSpace(envVal); v != "" {
		return v
	}
	return def
}

func pickBool(cliSet, cliVal bool, fileVal *bool, def bool) bool {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return def
}

func validInterval(s string) bool {
	hi, lo, ok := strings.Cut(s, ":")
	if !ok {
		return false
	}
	h, err1 := strconv.Atoi(hi)
	l, err2 := strconv.Atoi(lo)
	return err1 == nil && err2 == nil && l >= 0 && h <= 100 && l < h
}

func validateHTTPURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q 缺少 scheme 或 host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%q 的 scheme 必须是 %s 之一", raw, strings.Join(schemes, "/"))
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// ResolveSource 把相对路径数据源解析到 BaseDir 下；URL 形式原样返回。
func (c EffectiveConfig) ResolveSource(src string) string {
	if strings.Contains(src, "://") {
		return src
	}
	return absCleanFrom(c.BaseDir, src)
}

// readFileConfig 读取并解析配置文件（按扩展名选择 JSON 或 YAML）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = json.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readEnv 合并 .env 文件与进程环境变量；进程环境变量优先。
func readEnv(dir string) (map[string]string, error) {
	env := map[string]string{}
	for _, name := range envFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		m, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("%s：%w", name, err)
		}
		for k, v := range m {
			env[k] = v
		}
	}
	for _, k := range []string{EnvMoviesSource, EnvURLsSource, EnvOpener, EnvChromeDebugURL, EnvProxyURL, EnvMetricsFile, EnvRedisURL} {
		if v, ok := lookupEnv(k); ok {
			env[k] = v
		}
	}
	return env, nil
}
