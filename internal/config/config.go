package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingCategory 表示 CLI 与配置文件都没有给出 category。
	ErrCodeMissingCategory = "config_missing_category"
)

const (
	// FileBaseName 是在 cwd 中自动发现的配置文件名（扩展名 yaml/yml/json/toml）。
	FileBaseName = "wikifilms"
	// EnvPrefix 是环境变量前缀，例如 WIKIFILMS_TMDB_API_KEY。
	EnvPrefix = "WIKIFILMS"

	MinYear = 1900

	DefaultStartYear     = 2020
	DefaultEndYear       = 2023
	DefaultConcurrency   = 1
	MaxConcurrency       = 16
	DefaultRatePerSecond = 10.0
	DefaultTimeout       = 20 * time.Second
	DefaultTableClass    = "wikitable"
	DefaultURLTemplate   = "https://en.wikipedia.org/wiki/List_of_{category}_films_of_{year}"
	DefaultLogLevel      = "info"
)

// DefaultFormats 是未指定 output.formats 时导出的报表格式。
var DefaultFormats = []string{"csv", "html"}

var validFormats = map[string]struct{}{"csv": {}, "html": {}, "json": {}}

// CLIArgs 是 CLI 暴露的入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --concurrency=1 必须能覆盖配置文件里的 8。
type CLIArgs struct {
	// ConfigFile 非空时只读取该文件（必须存在）；为空时在 cwd 中自动发现。
	ConfigFile string

	Category    string
	CategorySet bool

	From    int
	FromSet bool
	To      int
	ToSet   bool

	Concurrency    int
	ConcurrencySet bool

	OutDir    string
	OutDirSet bool

	Formats    []string
	FormatsSet bool

	LogLevel    string
	LogLevelSet bool

	MetricsAddr    string
	MetricsAddrSet bool
}

// FileConfig 对应 wikifilms.{yaml,json,toml} 的解析结构（环境变量同样映射到这里）。
type FileConfig struct {
	Category       string       `mapstructure:"category"`
	StartYear      int          `mapstructure:"start_year"`
	EndYear        int          `mapstructure:"end_year"`
	URLTemplate    string       `mapstructure:"url_template"`
	TableClass     string       `mapstructure:"table_class"`
	Concurrency    int          `mapstructure:"concurrency"`
	RatePerSecond  float64      `mapstructure:"rate_per_second"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds"`
	Proxy          ProxyConfig  `mapstructure:"proxy"`
	TMDB           TMDBConfig   `mapstructure:"tmdb"`
	IMDb           IMDbConfig   `mapstructure:"imdb"`
	Output         OutputConfig `mapstructure:"output"`
	Log            LogConfig    `mapstructure:"log"`
	MetricsAddr    string       `mapstructure:"metrics_addr"`
}

type ProxyConfig struct {
	URL string `mapstructure:"url"`
}

type TMDBConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
}

type IMDbConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type OutputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 是实际读取的配置文件（没有则为空）。
	ConfigFile string

	Category  string
	StartYear int
	EndYear   int

	URLTemplate string
	TableClass  string

	Concurrency   int
	RatePerSecond float64
	Timeout       time.Duration
	ProxyURL      string

	TMDBAPIKey   string
	TMDBBaseURL  string
	TMDBLanguage string
	IMDbBaseURL  string

	OutDir  string
	// Formats 为空表示不导出报表。
	Formats []string

	LogLevel    string
	LogFile     string
	MetricsAddr string
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
	case ErrCodeMissingCategory:
		return fmt.Sprintf("%s：未指定 category（命令行参数或配置文件 category 字段）", e.Code)
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

// envKeys 是允许通过环境变量设置的配置项（key -> 额外的环境变量别名）。
var envKeys = map[string][]string{
	"category":        nil,
	"start_year":      nil,
	"end_year":        nil,
	"url_template":    nil,
	"table_class":     nil,
	"concurrency":     nil,
	"rate_per_second": nil,
	"timeout_seconds": nil,
	"proxy.url":       nil,
	"tmdb.api_key":    {"TMDB_API_KEY"},
	"tmdb.base_url":   nil,
	"tmdb.language":   nil,
	"imdb.base_url":   nil,
	"output.dir":      nil,
	"output.formats":  nil,
	"log.level":       nil,
	"log.file":        nil,
	"metrics_addr":    nil,
}

// LoadEffective 发现并读取配置（文件 + 环境变量），然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：只读取该文件，不存在即 config_not_found
// 2) 否则在 cwd 中查找 wikifilms.{yaml,yml,json,toml}（可选）
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 内置默认值。
// now 用于校验年份上限（不晚于当前年份）。
func LoadEffective(cwd string, cli CLIArgs, now time.Time) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, aliases := range envKeys {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
		}
	}

	cfgPath := ""
	if f := strings.TrimSpace(cli.ConfigFile); f != "" {
		cfgPath = absCleanFrom(cwdAbs, f)
		if _, err := os.Stat(cfgPath); err != nil {
			if os.IsNotExist(err) {
				return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
			}
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		v.SetConfigName(FileBaseName)
		v.AddConfigPath(cwdAbs)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: v.ConfigFileUsed(), Err: err}
			}
		} else {
			cfgPath = v.ConfigFileUsed()
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	eff, err := merge(cwdAbs, cli, fc, v.IsSet("start_year"), v.IsSet("end_year"), now)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Path == "" {
			ce.Path = cfgPath
		}
		return EffectiveConfig{}, err
	}
	eff.ConfigFile = cfgPath
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, startInFile, endInFile bool, now time.Time) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Err: fmt.Errorf(format, args...)}
	}

	// category：CLI > config（必填）
	category := strings.TrimSpace(fc.Category)
	if cli.CategorySet {
		category = strings.TrimSpace(cli.Category)
	}
	if category == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingCategory}
	}

	// 年份：CLI > config > 默认；只给了起始年份时，结束年份默认等于起始年份。
	start, startSet := DefaultStartYear, false
	if cli.FromSet {
		start, startSet = cli.From, true
	} else if startInFile {
		start, startSet = fc.StartYear, true
	}
	end := DefaultEndYear
	switch {
	case cli.ToSet:
		end = cli.To
	case endInFile:
		end = fc.EndYear
	case startSet:
		end = start
	}
	maxYear := now.Year()
	if start < MinYear || start > maxYear {
		return EffectiveConfig{}, invalid("start_year 必须在 [%d, %d] 范围内，实际 %d", MinYear, maxYear, start)
	}
	if end < MinYear || end > maxYear {
		return EffectiveConfig{}, invalid("end_year 必须在 [%d, %d] 范围内，实际 %d", MinYear, maxYear, end)
	}
	if start > end {
		return EffectiveConfig{}, invalid("start_year (%d) 不能晚于 end_year (%d)", start, end)
	}

	urlTemplate := strings.TrimSpace(fc.URLTemplate)
	if urlTemplate == "" {
		urlTemplate = DefaultURLTemplate
	}
	if !strings.Contains(urlTemplate, "{year}") {
		return EffectiveConfig{}, invalid("url_template 必须包含 {year}：%q", urlTemplate)
	}
	if err := validateHTTPURL(strings.NewReplacer("{category}", "x", "{year}", "2000").Replace(urlTemplate)); err != nil {
		return EffectiveConfig{}, invalid("url_template 无效：%v", err)
	}

	tableClass := strings.TrimSpace(fc.TableClass)
	if tableClass == "" {
		tableClass = DefaultTableClass
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 16]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	rps := fc.RatePerSecond
	if rps < 0 {
		return EffectiveConfig{}, invalid("rate_per_second 不能为负数：%v", rps)
	}
	if rps == 0 {
		rps = DefaultRatePerSecond
	}

	timeout := DefaultTimeout
	if fc.TimeoutSeconds < 0 {
		return EffectiveConfig{}, invalid("timeout_seconds 不能为负数：%d", fc.TimeoutSeconds)
	}
	if fc.TimeoutSeconds > 0 {
		timeout = time.Duration(fc.TimeoutSeconds) * time.Second
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid("proxy.url 缺少 scheme 或 host：%q", proxyURL)
		}
	}

	for name, raw := range map[string]string{"tmdb.base_url": fc.TMDB.BaseURL, "imdb.base_url": fc.IMDb.BaseURL} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if err := validateHTTPURL(strings.TrimSpace(raw)); err != nil {
			return EffectiveConfig{}, invalid("%s 无效：%v", name, err)
		}
	}

	outDir := strings.TrimSpace(fc.Output.Dir)
	if cli.OutDirSet {
		outDir = strings.TrimSpace(cli.OutDir)
	}
	if outDir == "" {
		outDir = "."
	}
	outDir = absCleanFrom(cwdAbs, outDir)

	formats, err := normalizeFormats(fc.Output.Formats)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
	}
	if len(formats) == 0 {
		formats = append([]string(nil), DefaultFormats...)
	}
	if cli.FormatsSet {
		// 显式传空（--format ""）表示不导出。
		if formats, err = normalizeFormats(cli.Formats); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
		}
	}

	logLevel := strings.TrimSpace(fc.Log.Level)
	if cli.LogLevelSet {
		logLevel = strings.TrimSpace(cli.LogLevel)
	}
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}
	switch strings.ToLower(logLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return EffectiveConfig{}, invalid("log.level 只能是 debug/info/warn/error，实际是 %q", logLevel)
	}

	logFile := strings.TrimSpace(fc.Log.File)
	if logFile != "" {
		logFile = absCleanFrom(cwdAbs, logFile)
	}

	metricsAddr := strings.TrimSpace(fc.MetricsAddr)
	if cli.MetricsAddrSet {
		metricsAddr = strings.TrimSpace(cli.MetricsAddr)
	}

	return EffectiveConfig{
		Category:      category,
		StartYear:     start,
		EndYear:       end,
		URLTemplate:   urlTemplate,
		TableClass:    tableClass,
		Concurrency:   concurrency,
		RatePerSecond: rps,
		Timeout:       timeout,
		ProxyURL:      proxyURL,
		TMDBAPIKey:    strings.TrimSpace(fc.TMDB.APIKey),
		TMDBBaseURL:   strings.TrimSpace(fc.TMDB.BaseURL),
		TMDBLanguage:  strings.TrimSpace(fc.TMDB.Language),
		IMDbBaseURL:   strings.TrimSpace(fc.IMDb.BaseURL),
		OutDir:        outDir,
		Formats:       formats,
		LogLevel:      strings.ToLower(logLevel),
		LogFile:       logFile,
		MetricsAddr:   metricsAddr,
	}, nil
}

// normalizeFormats 小写、去重并校验；支持 "csv,html" 这种逗号分隔写法。
func normalizeFormats(in []string) ([]string, error) {
	var out []string
	seen := map[string]struct{}{}
	for _, item := range in {
		for _, f := range strings.Split(item, ",") {
			f = strings.ToLower(strings.TrimSpace(f))
			if f == "" {
				continue
			}
			if _, ok := validFormats[f]; !ok {
				return nil, fmt.Errorf("不支持的输出格式 %q（只能是 csv/html/json）", f)
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
