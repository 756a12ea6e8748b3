package domain

import "errors"

const (
	ErrCodeLoadFailed     = "load_failed"
	ErrCodeEmptySelection = "empty_selection"
	ErrCodeNotLoaded      = "not_loaded"
	ErrCodeOpenFailed     = "open_failed"
	ErrCodeExhausted      = "selection_exhausted"
	ErrCodeConfigInvalid  = "config_invalid"
)

// ErrEmptySelection 表示没有任何记录可供抽取（筛选后为空）。
var ErrEmptySelection = errors.New("empty selection")

// ErrNotLoaded 表示数据尚未加载（或加载后为空），无法抽取。
var ErrNotLoaded = errors.New("dataset not loaded")

// Message 文案与弹窗保持一致，CLI/watch 模式直接展示。
const (
	MsgNotLoaded      = "电影数据未加载，请稍后重试"
	MsgEmptySelection = "当前筛选条件下无电影数据，请调整筛选条件"
	MsgURLsEmpty      = "链接列表为空，请确保链接文件存在"
	MsgExhausted      = "符合条件的记录只有 %d 条，少于请求的 %d 条"
)
