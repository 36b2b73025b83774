package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// 退出码：0 全部记录两个 id 都已解析；1 运行失败/存在未解析记录/被取消；2 参数错误。
const (
	exitOK         = 0
	exitIncomplete = 1
	exitUsage      = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli 承载一次进程调用的 IO 与可替换的时间源。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
	getwd  func() (string, error)

	code int
}

// usageError 表示参数错误（退出码 2）。
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr, now: time.Now, getwd: os.Getwd}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "错误：%v\n", err)
		var ue *usageError
		if errors.As(err, &ue) || c.code == 0 {
			return exitUsage
		}
		return c.code
	}
	return c.code
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wikifilms",
		Short: "Extract Wikipedia film lists and resolve TMDb / IMDb ids",
		Long: `wikifilms reads the yearly "List of <category> films of <year>" pages on
Wikipedia, extracts every movie row and resolves each title against TMDb and IMDb.
Results are printed (table on a terminal, one JSON document otherwise) and
exported as CSV / HTML / JSON reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default: ./wikifilms.{yaml,json,toml} if present)")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	root.AddCommand(c.runCmd())
	return root
}
