package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/DBPick/internal/infra/fsx"
)

// Store 提供 <root>/chart/ 下的排行接口页面缓存。
//
// 中断后重跑 crawl 时，已抓过的页面直接命中缓存，不再发请求。
// ReadOnly=true 时只读（crawl --test 不污染缓存）。
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PageKey 唯一标识排行接口的一页。
type PageKey struct {
	TypeID   int
	Interval string
	Start    int
}

var intervalRE = regexp.MustCompile(`^(\d+):(\d+)$`)

// PagePath 返回页面缓存的绝对路径：<root>/chart/<type>/<hi>-<lo>/<start>.json。
func (s Store) PagePath(k PageKey) (string, error) {
	if k.TypeID <= 0 {
		return "", fmt.Errorf("type 必须为正数：%d", k.TypeID)
	}
	if k.Start < 0 {
		return "", fmt.Errorf("start 不能为负：%d", k.Start)
	}
	// 最小约束：interval 只能是 "数字:数字"，避免路径穿越。
	m := intervalRE.FindStringSubmatch(strings.TrimSpace(k.Interval))
	if m == nil {
		return "", fmt.Errorf("非法 interval：%q", k.Interval)
	}
	return filepath.Join(s.Root, "chart", strconv.Itoa(k.TypeID), m[1]+"-"+m[2], strconv.Itoa(k.Start)+".json"), nil
}

func (s Store) ReadPage(k PageKey) ([]byte, bool, error) {
	path, err := s.PagePath(k)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WritePage(k PageKey, b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.PagePath(k)
	if err != nil {
		return err
	}
	return fsx.WriteFile(path, b)
}
