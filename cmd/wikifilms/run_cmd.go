package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/wikifilms/internal/app/extract"
	"github.com/John-Robertt/wikifilms/internal/app/run"
	"github.com/John-Robertt/wikifilms/internal/config"
	"github.com/John-Robertt/wikifilms/internal/domain"
	"github.com/John-Robertt/wikifilms/internal/export"
	"github.com/John-Robertt/wikifilms/internal/infra/httpx"
	"github.com/John-Robertt/wikifilms/internal/infra/logx"
	"github.com/John-Robertt/wikifilms/internal/infra/metrics"
	"github.com/John-Robertt/wikifilms/internal/provider"
	"github.com/John-Robertt/wikifilms/internal/provider/imdb"
	"github.com/John-Robertt/wikifilms/internal/provider/tmdb"
	"github.com/John-Robertt/wikifilms/internal/resolve"
	"github.com/John-Robertt/wikifilms/internal/source/wikipedia"
)

func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [category]",
		Short: "Extract and resolve the film lists of a category over a year range",
		Example: `  wikifilms run Bollywood --from 2021 --to 2023
  wikifilms run Tamil --from 2022 --format csv,json --out reports
  TMDB_API_KEY=... wikifilms run "Hong Kong" --concurrency 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.runRun,
	}
	f := cmd.Flags()
	f.Int("from", config.DefaultStartYear, "first year (inclusive)")
	f.Int("to", config.DefaultEndYear, "last year (inclusive; defaults to --from when only --from is given)")
	f.Int("concurrency", config.DefaultConcurrency, "rows resolved in parallel within a year (1-16)")
	f.String("out", ".", "directory for exported reports")
	f.StringSlice("format", config.DefaultFormats, "report formats: csv,html,json (empty to skip export)")
	f.String("log-level", config.DefaultLogLevel, "debug|info|warn|error")
	f.String("metrics-addr", "", "expose Prometheus /metrics on this address while running, e.g. :9090")
	return cmd
}

func (c *cli) cliArgs(cmd *cobra.Command, args []string) config.CLIArgs {
	f := cmd.Flags()
	var a config.CLIArgs
	a.ConfigFile, _ = cmd.Flags().GetString("config")
	if len(args) == 1 {
		a.Category, a.CategorySet = args[0], true
	}
	a.From, _ = f.GetInt("from")
	a.FromSet = f.Changed("from")
	a.To, _ = f.GetInt("to")
	a.ToSet = f.Changed("to")
	a.Concurrency, _ = f.GetInt("concurrency")
	a.ConcurrencySet = f.Changed("concurrency")
	a.OutDir, _ = f.GetString("out")
	a.OutDirSet = f.Changed("out")
	a.Formats, _ = f.GetStringSlice("format")
	a.FormatsSet = f.Changed("format")
	a.LogLevel, _ = f.GetString("log-level")
	a.LogLevelSet = f.Changed("log-level")
	a.MetricsAddr, _ = f.GetString("metrics-addr")
	a.MetricsAddrSet = f.Changed("metrics-addr")
	return a
}

func (c *cli) runRun(cmd *cobra.Command, args []string) error {
	c.code = exitIncomplete

	cwd, err := c.getwd()
	if err != nil {
		return fmt.Errorf("读取当前目录失败：%w", err)
	}
	eff, err := config.LoadEffective(cwd, c.cliArgs(cmd, args), c.now())
	if err != nil {
		if config.Code(err) == config.ErrCodeMissingCategory {
			return &usageError{err: err}
		}
		return err
	}

	logger, closer, err := logx.New(logx.Options{Level: eff.LogLevel, File: eff.LogFile, Console: c.stderr})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var m *metrics.Metrics
	if eff.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, eff.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "addr", eff.MetricsAddr, "err", err)
			}
		}()
	}

	runner, err := buildRunner(eff, logger, m)
	if err != nil {
		return err
	}

	interactive := isTTY(c.stdout)
	var obs run.Observer = run.LogObserver{Logger: logger}
	var ui *progressUI
	if progressW, ok := c.progressWriter(); ok {
		ui = newProgressUI(progressW)
		ui.settings = eff
		obs = ui
	}

	br := runner.Run(ctx, eff.Category, run.YearRange(eff.StartYear, eff.EndYear), obs)
	if ui != nil {
		ui.Stop()
	}

	if len(br.Records) > 0 && len(eff.Formats) > 0 {
		paths, err := export.Write(eff.OutDir, eff.Formats, br, c.now())
		if err != nil {
			logger.Error("export failed", "dir", eff.OutDir, "err", err)
		} else {
			for _, p := range paths {
				logger.Info("report written", "path", p)
			}
		}
	}

	if interactive {
		emitTable(c.stdout, br)
	} else {
		// stdout 非 TTY：stdout 必须且仅输出一个 BatchResult JSON（日志/摘要走 stderr）。
		enc := json.NewEncoder(c.stdout)
		if err := enc.Encode(br); err != nil {
			return fmt.Errorf("输出结果失败：%w", err)
		}
	}
	fmt.Fprintln(c.stderr, summaryLine(br))

	if !br.Canceled && br.Resolved() == len(br.Records) {
		c.code = exitOK
	}
	return nil
}

// buildRunner 为每个外部服务各自构造 HTTP client（各自的限速配额），并装配流水线。
func buildRunner(eff config.EffectiveConfig, logger *slog.Logger, m *metrics.Metrics) (*run.Runner, error) {
	newClient := func(h http.Header) (*http.Client, error) {
		return httpx.NewClient(httpx.Options{
			ProxyURL:      eff.ProxyURL,
			Timeout:       eff.Timeout,
			RatePerSecond: eff.RatePerSecond,
			Header:        h,
		})
	}

	wikiHTTP, err := newClient(http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return nil, fmt.Errorf("初始化 wikipedia client 失败：%w", err)
	}
	tmdbHTTP, err := newClient(nil)
	if err != nil {
		return nil, fmt.Errorf("初始化 tmdb client 失败：%w", err)
	}
	imdbHTTP, err := newClient(nil)
	if err != nil {
		return nil, fmt.Errorf("初始化 imdb client 失败：%w", err)
	}

	var catalog provider.Catalog
	tc, err := tmdb.New(eff.TMDBAPIKey, eff.TMDBBaseURL, eff.TMDBLanguage, tmdb.WithHTTPClient(tmdbHTTP))
	switch {
	case errors.Is(err, provider.ErrNoAPIKey):
		// 没有 key 仍然可以跑：catalog 步骤全部 skipped，只靠 IMDb 搜索。
		logger.Warn("tmdb api key not configured; catalog lookups disabled",
			"hint", "set tmdb.api_key, WIKIFILMS_TMDB_API_KEY or TMDB_API_KEY")
	case err != nil:
		return nil, err
	default:
		catalog = tc
	}

	ic, err := imdb.New(eff.IMDbBaseURL, imdb.WithHTTPClient(imdbHTTP))
	if err != nil {
		return nil, err
	}

	p := &extract.Pipeline{
		Source:      wikipedia.New(wikiHTTP),
		Resolver:    resolve.New(catalog, ic),
		URLTemplate: eff.URLTemplate,
		Class:       eff.TableClass,
		Workers:     eff.Concurrency,
		Logger:      logger,
		Metrics:     m,
	}
	return run.New(p, logger), nil
}

func summaryLine(br domain.BatchResult) string {
	s := fmt.Sprintf("完成：category=%s years=%d/%d records=%d resolved=%d",
		br.Category, br.YearsWithData, br.YearsAttempted, len(br.Records), br.Resolved())
	if br.Canceled {
		s += " canceled=true"
	}
	return s
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressWriter 选择进度输出的位置：只在交互终端启用，默认走 stderr（不污染 stdout JSON）。
func (c *cli) progressWriter() (io.Writer, bool) {
	if isTTY(c.stderr) {
		return c.stderr, true
	}
	return nil, false
}
